package torrent

import (
	"time"
)

// Torrent event loop. All state mutations happen on this goroutine.
func (t *Torrent) run() {
	seedDurationTicker := time.NewTicker(time.Second)
	defer seedDurationTicker.Stop()

	unchokeTicker := time.NewTicker(10 * time.Second)
	defer unchokeTicker.Stop()

	statsWriteTicker := time.NewTicker(t.config.StatsWriteInterval)
	defer statsWriteTicker.Stop()

	for {
		select {
		case <-t.closeC:
			t.close()
			close(t.doneC)
			return
		case <-t.startCommandC:
			t.start()
		case <-t.stopCommandC:
			t.stop(nil)
		case <-t.verifyCommandC:
			t.handleVerifyCommand()
		case cmd := <-t.notifyErrorCommandC:
			cmd.errCC <- t.errC
		case cmd := <-t.notifyListenCommandC:
			cmd.portCC <- t.portC
		case req := <-t.statsCommandC:
			req.Response <- t.stats()
		case req := <-t.peersCommandC:
			req.Response <- t.getPeers()
		case req := <-t.portCommandC:
			req.Response <- t.port
		case cmd := <-t.setPriorityCommandC:
			t.handleSetPriority(cmd)
		case p := <-t.allocatorProgressC:
			t.bytesAllocated = p.AllocatedSize
		case al := <-t.allocatorResultC:
			t.handleAllocationDone(al)
		case p := <-t.verifierProgressC:
			t.checkedPieces = p.Checked
		case ve := <-t.verifierResultC:
			t.handleVerificationDone(ve)
		case pe := <-t.ramNotifyC:
			t.startSinglePieceDownloader(pe)
		case addrs := <-t.addPeersCommandC:
			t.handleNewPeers(addrs)
		case conn := <-t.incomingConnC:
			t.handleNewConnection(conn)
		case pw := <-t.pieceWriterResultC:
			t.handlePieceWriteDone(pw)
		case now := <-seedDurationTicker.C:
			t.updateSeedDuration(now)
		case <-statsWriteTicker.C:
			if t.status() != Stopped {
				t.writeStats()
			}
		case pe := <-t.peerSnubbedC:
			t.handlePeerSnubbed(pe)
		case <-unchokeTicker.C:
			t.unchoker.TickUnchoke(t.getPeersForUnchoker(), t.completed)
		case ih := <-t.incomingHandshakerResultC:
			t.handleIncomingHandshakeDone(ih)
		case oh := <-t.outgoingHandshakerResultC:
			t.handleOutgoingHandshakeDone(oh)
		case pe := <-t.peerDisconnectedC:
			t.closePeer(pe)
		case pm := <-t.pieceMessagesC.ReceiveC():
			t.handlePieceMessage(pm)
		case pm := <-t.messages:
			t.handlePeerMessage(pm)
		}
	}
}

func (t *Torrent) updateSeedDuration(now time.Time) {
	if t.status() != Seeding {
		t.seedDurationUpdatedAt = time.Time{}
		return
	}
	if t.seedDurationUpdatedAt.IsZero() {
		t.seedDurationUpdatedAt = now
		return
	}
	t.seededFor.Inc(int64(now.Sub(t.seedDurationUpdatedAt)))
	t.seedDurationUpdatedAt = now
}

func (t *Torrent) handleVerifyCommand() {
	if t.status() == Stopped {
		t.mBitfield.Lock()
		t.bitfield = nil
		t.mBitfield.Unlock()
		t.start()
		return
	}
	t.doVerify = true
	t.stop(nil)
}

func (t *Torrent) handleSetPriority(cmd priorityCommand) {
	if cmd.Index >= t.numPieces {
		return
	}
	t.priorities[cmd.Index] = cmd.Priority
	if t.piecePicker != nil {
		t.piecePicker.SetPriority(cmd.Index, cmd.Priority.priority())
	}
}
