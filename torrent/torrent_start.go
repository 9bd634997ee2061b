package torrent

import (
	"encoding/hex"
	"net"

	"github.com/rcrowley/go-metrics"
	"github.com/tidetorrent/tide/internal/acceptor"
	"github.com/tidetorrent/tide/internal/allocator"
	"github.com/tidetorrent/tide/internal/peer"
	"github.com/tidetorrent/tide/internal/piecedownloader"
	"github.com/tidetorrent/tide/internal/verifier"
)

func (t *Torrent) start() {
	// Do not start if already started.
	if t.errC != nil {
		return
	}

	t.log.Info("starting torrent")
	t.errC = make(chan error, 1)
	t.portC = make(chan int, 1)
	t.lastError = nil
	t.downloadSpeed = metrics.NewMeter()
	t.uploadSpeed = metrics.NewMeter()

	if t.pieces == nil {
		t.startAllocator()
		return
	}
	if t.bitfield == nil {
		t.startVerifier()
		return
	}
	t.startAcceptor()
	t.startPieceDownloaders()
}

func (t *Torrent) startAllocator() {
	if t.allocator != nil {
		panic("allocator exists")
	}
	files := make([]allocator.FileInfo, len(t.fileSpecs))
	for i, f := range t.fileSpecs {
		files[i] = allocator.FileInfo{Path: f.Path, Length: f.Length}
	}
	t.allocator = allocator.New()
	go t.allocator.Run(files, t.storage, t.allocatorProgressC, t.allocatorResultC)
}

func (t *Torrent) startVerifier() {
	if t.verifier != nil {
		panic("verifier exists")
	}
	if len(t.pieces) == 0 {
		panic("zero length pieces")
	}
	t.verifier = verifier.New()
	go t.verifier.Run(t.pieces, t.hashAlgo, t.verifierProgressC, t.verifierResultC)
}

func (t *Torrent) startAcceptor() {
	if t.acceptor != nil {
		return
	}
	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{Port: t.port})
	if err != nil {
		t.log.Warningf("cannot listen port %d: %s", t.port, err)
		return
	}
	t.log.Info("Listening peers on tcp://" + listener.Addr().String())
	t.port = listener.Addr().(*net.TCPAddr).Port
	t.portC <- t.port
	t.acceptor = acceptor.New(listener, t.incomingConnC, t.log)
	go t.acceptor.Run()
}

func (t *Torrent) startPieceDownloaders() {
	if t.status() != Downloading {
		return
	}
	for pe := range t.peers {
		if !pe.Downloading {
			t.startPieceDownloaderFor(pe)
		}
	}
}

func (t *Torrent) startPieceDownloaderFor(pe *peer.Peer) {
	if t.status() != Downloading {
		return
	}
	key := t.name
	if key == "" {
		key = hex.EncodeToString(t.infoHash[:])
	}
	ok := t.ram.Request(key, pe, int(t.pieceLength), t.ramNotifyC, pe.Done())
	if ok {
		t.startSinglePieceDownloader(pe)
	}
}

func (t *Torrent) startSinglePieceDownloader(pe *peer.Peer) {
	var started bool
	defer func() {
		if !started {
			t.ram.Release(int(t.pieceLength))
		}
	}()
	if t.status() != Downloading {
		return
	}
	pi := t.piecePicker.PickFor(pe)
	if pi == nil {
		return
	}
	pd := piecedownloader.New(pi, pe, t.piecePool.Get(int(pi.Length)))
	if _, ok := t.pieceDownloaders[pe]; ok {
		panic("peer already downloading")
	}
	t.pieceDownloaders[pe] = pd
	pe.Downloading = true
	pd.RequestBlocks(pe.QueueLength())
	pe.ResetSnubTimer()
	started = true
}
