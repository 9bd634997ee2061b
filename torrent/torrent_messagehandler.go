package torrent

import (
	"fmt"

	"github.com/tidetorrent/tide/internal/bitfield"
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/peerconn/peerwriter"
	"github.com/tidetorrent/tide/internal/peerprotocol"
	"github.com/tidetorrent/tide/internal/piecedownloader"
	"github.com/tidetorrent/tide/internal/piecewriter"
)

func (t *Torrent) handlePieceMessage(pm peer.PieceMessage) {
	msg := pm.Piece
	pe := pm.Peer
	l := int64(len(msg.Buffer.Data))
	if msg.Index >= t.numPieces {
		pe.Logger().Errorln("invalid piece index:", msg.Index)
		t.bytesWasted.Inc(l)
		t.closePeer(pe)
		msg.Buffer.Release()
		return
	}
	t.downloadSpeed.Mark(l)
	t.bytesDownloaded.Inc(l)
	pd, ok := t.pieceDownloaders[pe]
	if !ok {
		t.bytesWasted.Inc(l)
		msg.Buffer.Release()
		return
	}
	if pd.Piece.Index != msg.Index {
		t.bytesWasted.Inc(l)
		msg.Buffer.Release()
		return
	}
	pi := pd.Piece
	err := pd.GotBlock(msg.Begin, msg.Buffer.Data)
	switch err {
	case piecedownloader.ErrBlockDuplicate, piecedownloader.ErrBlockNotRequested:
		// We cancel all pending requests on choke message and request
		// them again after an unchoke. Some clients appear to send the
		// same block if we request it twice, so tolerate a few.
		pe.Logger().Debugln("unexpected block:", msg.Index, "begin:", msg.Begin, "err:", err)
		t.bytesWasted.Inc(l)
		if pe.Misbehave(1, t.config.MaxPeerMisbehavior) {
			t.banPeer(pe)
			msg.Buffer.Release()
			return
		}
	case nil:
	default:
		pe.Logger().Error(err)
		t.closePeer(pe)
		msg.Buffer.Release()
		return
	}
	msg.Buffer.Release()
	if !pd.Done() {
		if !pe.PeerChoking {
			pd.RequestBlocks(pe.QueueLength())
			pe.ResetSnubTimer()
		}
		return
	}
	t.log.Debugf("piece #%d downloaded from %s", msg.Index, pe.IP())
	t.closePieceDownloader(pd)
	pe.StopSnubTimer()

	if pi.Writing {
		panic("piece is already writing")
	}
	pi.Writing = true

	// Request next piece while writing the completed piece, being optimistic about hash check.
	t.startPieceDownloaderFor(pe)

	// Prevent receiving piece messages to avoid more than 1 write per torrent.
	t.pieceMessagesC.Suspend()

	pw := piecewriter.New(pi, pe, pd.Buffer)
	go pw.Run(t.hashAlgo, t.pieceWriterResultC, t.doneC, uint64(t.config.MaxWriteRetries), t.writesPerSecond, t.writeBytesPerSecond, t.semWrite)
}

func (t *Torrent) banPeer(pe *peer.Peer) {
	pe.Logger().Warning("banning peer for misbehavior")
	t.bannedPeerIPs[pe.Conn.IP()] = struct{}{}
	t.closePeer(pe)
}

func (t *Torrent) handlePeerMessage(pm peer.Message) {
	pe := pm.Peer
	switch msg := pm.Message.(type) {
	case peerprotocol.HaveMessage:
		if msg.Index >= t.numPieces {
			pe.Logger().Errorln("unexpected piece index:", msg.Index)
			t.closePeer(pe)
			break
		}
		pe.Bitfield.Set(msg.Index)
		if t.piecePicker != nil {
			t.piecePicker.HandleHave(pe, msg.Index)
		}
		t.updateInterestedState(pe)
		t.startPieceDownloaderFor(pe)
	case peerprotocol.BitfieldMessage:
		if len(msg.Data) == 0 {
			pe.Logger().Debugln("received bitfield length of zero")
			break
		}
		bf, err := bitfield.NewBytes(msg.Data, t.numPieces)
		if err != nil {
			pe.Logger().Errorf("%s [len(bitfield)=%d] [numPieces=%d]", err, len(msg.Data), t.numPieces)
			t.closePeer(pe)
			break
		}
		pe.Logger().Debugln("Received bitfield:", bf.Hex())
		for i := uint32(0); i < bf.Len(); i++ {
			if !bf.Test(i) {
				continue
			}
			pe.Bitfield.Set(i)
			if t.piecePicker != nil {
				t.piecePicker.HandleHave(pe, i)
			}
		}
		t.updateInterestedState(pe)
		t.startPieceDownloaderFor(pe)
	case peerprotocol.UnchokeMessage:
		pe.PeerChoking = false
		pd, ok := t.pieceDownloaders[pe]
		if !ok {
			t.startPieceDownloaderFor(pe)
			break
		}
		delete(t.pieceDownloadersChoked, pe)
		pd.RequestBlocks(pe.QueueLength())
		pe.ResetSnubTimer()
		if t.piecePicker != nil {
			t.piecePicker.HandleUnchoke(pe, pd.Piece.Index)
		}
	case peerprotocol.ChokeMessage:
		pe.PeerChoking = true
		pd, ok := t.pieceDownloaders[pe]
		if !ok {
			break
		}
		pd.Choked()
		pe.StopSnubTimer()
		t.pieceDownloadersChoked[pe] = pd
		delete(t.pieceDownloadersSnubbed, pe)
		delete(t.peersSnubbed, pe)
		if t.piecePicker != nil {
			t.piecePicker.HandleChoke(pe, pd.Piece.Index)
		}
		t.startPieceDownloaders()
	case peerprotocol.InterestedMessage:
		pe.PeerInterested = true
		t.unchoker.FastUnchoke(pe)
	case peerprotocol.NotInterestedMessage:
		pe.PeerInterested = false
	case peerprotocol.RequestMessage:
		if t.pieces == nil || t.bitfield == nil {
			pe.Logger().Error("request received but files are not ready")
			t.closePeer(pe)
			break
		}
		if msg.Index >= t.numPieces {
			pe.Logger().Errorln("invalid request index:", msg.Index)
			t.closePeer(pe)
			break
		}
		if msg.Begin+msg.Length > t.pieces[msg.Index].Length {
			pe.Logger().Errorln("invalid request length:", msg.Length)
			t.closePeer(pe)
			break
		}
		pi := &t.pieces[msg.Index]
		if !pi.Done {
			pe.Logger().Debugln("requested piece we don't have:", msg.Index)
			break
		}
		if pe.ClientChoking {
			break
		}
		if pe.QueuedUploads >= t.config.MaxRequestsIn {
			pe.Logger().Debugln("peer request queue is full, dropping request for piece:", msg.Index)
			break
		}
		pe.QueuedUploads++
		pe.SendPiece(msg, pi.Data)
	case peerprotocol.CancelMessage:
		if msg.Index >= t.numPieces {
			pe.Logger().Debugln("invalid cancel index:", msg.Index)
			break
		}
		pe.CancelRequest(msg)
	case peerprotocol.ExtensionMessage:
		// The engine speaks no extensions. Frames are dropped here so
		// an outer layer may hook them in the future.
		pe.Logger().Debugln("ignoring extension message id:", msg.ExtendedID)
	case peerwriter.BlockUploaded:
		l := int64(msg.Length)
		t.uploadSpeed.Mark(l)
		t.bytesUploaded.Inc(l)
		if pe.QueuedUploads > 0 {
			pe.QueuedUploads--
		}
	default:
		panic(fmt.Sprintf("unhandled peer message type: %T", msg))
	}
}

func (t *Torrent) updateInterestedState(pe *peer.Peer) {
	if t.pieces == nil || t.bitfield == nil {
		return
	}
	interested := false
	if !t.completed {
		for i := uint32(0); i < t.bitfield.Len(); i++ {
			weHave := t.bitfield.Test(i)
			peerHave := pe.Bitfield.Test(i)
			if !weHave && peerHave {
				interested = true
				break
			}
		}
	}
	if !pe.ClientInterested && interested {
		pe.ClientInterested = true
		msg := peerprotocol.InterestedMessage{}
		pe.SendMessage(msg)
		return
	}
	if pe.ClientInterested && !interested {
		pe.ClientInterested = false
		msg := peerprotocol.NotInterestedMessage{}
		pe.SendMessage(msg)
		return
	}
}
