package devices

import (
	"fmt"
	"io"
	"os"
	"sync"
)

const BlockSize = 512

// BlockStore backs an emulated disk in BlockSize units.
type BlockStore interface {
	BlockCount() uint32
	ReadBlocks(lba uint32, count uint32) ([]byte, error)
	WriteBlocks(lba uint32, data []byte) error
}

func checkRange(store BlockStore, lba uint32, count uint32) error {
	if uint64(lba)+uint64(count) > uint64(store.BlockCount()) {
		return fmt.Errorf("blocks %d+%d beyond end of disk (%d blocks)", lba, count, store.BlockCount())
	}
	return nil
}

type MemoryStore struct {
	lock sync.Mutex
	data []byte
}

func NewMemoryStore(blocks uint32) *MemoryStore {
	return &MemoryStore{data: make([]byte, int(blocks)*BlockSize)}
}

func (store *MemoryStore) BlockCount() uint32 {
	return uint32(len(store.data) / BlockSize)
}

func (store *MemoryStore) ReadBlocks(lba uint32, count uint32) ([]byte, error) {
	if err := checkRange(store, lba, count); err != nil {
		return nil, err
	}
	store.lock.Lock()
	defer store.lock.Unlock()
	start := int(lba) * BlockSize
	return append([]byte{}, store.data[start:start+int(count)*BlockSize]...), nil
}

func (store *MemoryStore) WriteBlocks(lba uint32, data []byte) error {
	if err := checkRange(store, lba, uint32(len(data)/BlockSize)); err != nil {
		return err
	}
	store.lock.Lock()
	defer store.lock.Unlock()
	copy(store.data[int(lba)*BlockSize:], data)
	return nil
}

// FileStore serves a raw disk image file.
type FileStore struct {
	file   *os.File
	blocks uint32
}

func OpenFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &BackingStoreError{Path: path, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &BackingStoreError{Path: path, Err: err}
	}
	if info.Size() < BlockSize {
		file.Close()
		return nil, &BackingStoreError{Path: path, Err: fmt.Errorf("image is smaller than one block")}
	}
	return &FileStore{file: file, blocks: uint32(info.Size() / BlockSize)}, nil
}

func (store *FileStore) BlockCount() uint32 {
	return store.blocks
}

func (store *FileStore) ReadBlocks(lba uint32, count uint32) ([]byte, error) {
	if err := checkRange(store, lba, count); err != nil {
		return nil, err
	}
	data := make([]byte, int(count)*BlockSize)
	if _, err := store.file.ReadAt(data, int64(lba)*BlockSize); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

func (store *FileStore) WriteBlocks(lba uint32, data []byte) error {
	if err := checkRange(store, lba, uint32(len(data)/BlockSize)); err != nil {
		return err
	}
	_, err := store.file.WriteAt(data, int64(lba)*BlockSize)
	return err
}

func (store *FileStore) Close() error {
	return store.file.Close()
}
