package storageprovider

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/dgraph-io/badger/v4"

	"github.com/getsentry/probetools/internal/storageutil"
)

// Badger stores reports in an embedded badger database, for running the
// service without a bucket.
type Badger struct {
	DB *badger.DB
}

// Put writes a file to the storage provider with name being the path. The
// value is committed when the writer is closed.
func (b *Badger) Put(_ context.Context, name string) (io.WriteCloser, error) {
	return &badgerWriter{
		buf:  &bytes.Buffer{},
		txn:  b.DB.NewTransaction(true),
		name: name,
	}, nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Badger) Get(_ context.Context, name string) (storageutil.ReadSizeCloser, error) {
	txn := b.DB.NewTransaction(false)
	item, err := txn.Get([]byte(name))
	if err != nil {
		txn.Discard()
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	return &badgerReader{
		txn:    txn,
		reader: bytes.NewReader(value),
		size:   item.ValueSize(),
	}, nil
}

type badgerWriter struct {
	buf  *bytes.Buffer
	txn  *badger.Txn
	name string
	done bool
}

func (bw *badgerWriter) Write(p []byte) (int, error) {
	n, err := bw.buf.Write(p)
	if err != nil {
		bw.discard()
	}
	return n, err
}

func (bw *badgerWriter) Close() error {
	if bw.done {
		return nil
	}
	defer bw.discard()
	if err := bw.txn.Set([]byte(bw.name), bw.buf.Bytes()); err != nil {
		return err
	}
	bw.done = true
	return bw.txn.Commit()
}

func (bw *badgerWriter) discard() {
	if !bw.done {
		bw.txn.Discard()
		bw.done = true
	}
}

type badgerReader struct {
	txn    *badger.Txn
	reader io.Reader
	size   int64
}

func (br *badgerReader) Read(p []byte) (int, error) {
	return br.reader.Read(p)
}

func (br *badgerReader) Close() error {
	br.txn.Discard()
	return nil
}

func (br *badgerReader) Size() int64 {
	return br.size
}
