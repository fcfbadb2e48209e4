package facedancer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.bug.st/serial"

	"github.com/bulwarkid/vusb/util"
)

var boardLogger = util.NewLogger("[BOARD] ", util.LogLevelDebug)

const (
	MonitorApp         uint8 = 0x00
	MonitorVerbEnable  uint8 = 0x10
	MonitorVerbBanner  uint8 = 0x7F
	DefaultBaudRate          = 115200
	defaultPortTimeout       = 5 * time.Second
	maxBannerFrames          = 16
)

// Board is a Facedancer-style controller board on a serial port.
type Board struct {
	*Channel
	port serial.Port
	path string
	baud int
}

func OpenBoard(path string, baud int) (*Board, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	board := &Board{path: path, baud: baud}
	if err := board.open(); err != nil {
		return nil, err
	}
	return board, nil
}

func (board *Board) open() error {
	if err := WaitForPort(board.path, defaultPortTimeout); err != nil {
		return err
	}
	port, err := serial.Open(board.path, &serial.Mode{BaudRate: board.baud})
	if err != nil {
		return &ChannelError{Op: "open", Kind: ErrorKindIO, Err: fmt.Errorf("could not open %s: %w", board.path, err)}
	}
	board.port = port
	board.Channel = NewChannel(port)
	return nil
}

// Reset pulses the board's reset line and waits for the monitor banner.
// Boards whose USB-serial bridge re-enumerates on reset are reopened.
func (board *Board) Reset() error {
	boardLogger.Printf("Resetting board on %s", board.path)
	if err := board.pulseReset(); err != nil {
		return err
	}
	if _, err := os.Stat(board.path); err != nil {
		board.port.Close()
		if err := board.open(); err != nil {
			return err
		}
	}
	return board.waitForBanner()
}

func (board *Board) pulseReset() error {
	if err := board.port.SetRTS(true); err != nil {
		return &ChannelError{Op: "reset", Kind: ErrorKindIO, Err: err}
	}
	if err := board.port.SetDTR(true); err != nil {
		return &ChannelError{Op: "reset", Kind: ErrorKindIO, Err: err}
	}
	time.Sleep(50 * time.Millisecond)
	if err := board.port.SetDTR(false); err != nil {
		return &ChannelError{Op: "reset", Kind: ErrorKindIO, Err: err}
	}
	time.Sleep(100 * time.Millisecond)
	if err := board.port.ResetInputBuffer(); err != nil {
		return &ChannelError{Op: "reset", Kind: ErrorKindIO, Err: err}
	}
	return nil
}

func (board *Board) waitForBanner() error {
	for i := 0; i < maxBannerFrames; i++ {
		frame, err := board.Receive()
		if err != nil {
			return err
		}
		if frame.App == MonitorApp && frame.Verb == MonitorVerbBanner {
			boardLogger.Printf("Board ready: %q", string(frame.Payload))
			return nil
		}
	}
	return &ChannelError{Op: "reset", Kind: ErrorKindIO, Err: fmt.Errorf("no monitor banner after %d frames", maxBannerFrames)}
}

// EnableApp asks the monitor to start an application on the board.
func (board *Board) EnableApp(app uint8) error {
	_, err := board.Transact(MonitorApp, MonitorVerbEnable, []byte{app})
	return err
}

func (board *Board) Close() error {
	if board.port == nil {
		return nil
	}
	return board.port.Close()
}

// WaitForPort returns once path exists, waiting up to timeout for it to be created.
func WaitForPort(path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher for %s: %w", path, err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("could not watch %s: %w", filepath.Dir(path), err)
	}
	// The node may have appeared between the first check and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for %s", path)
			}
			if event.Op&fsnotify.Create != 0 && filepath.Clean(event.Name) == filepath.Clean(path) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if ok {
				return fmt.Errorf("watching for %s: %w", path, err)
			}
		case <-deadline.C:
			return fmt.Errorf("timed out after %s waiting for %s", timeout, path)
		}
	}
}
