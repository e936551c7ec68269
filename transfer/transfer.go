// Package transfer implements the push and pull block-transfer loops: the
// only two sdspi operations that issue more than one command per
// invocation. A non-fault-tolerant stop never rewinds the transferred
// count, and a fault-tolerant substitution always counts as one
// transferred block.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/daedaluz/sdspi/sdproto"
	"github.com/daedaluz/sdspi/session"
)

const cmdWriteBlock = 24
const cmdReadBlock = 17

// Report summarizes the outcome of a Push or Pull: how many of the
// requested blocks actually transferred and how long it took, formatted the
// way the source tool's "Pushed/Pulled k of N block(s) in +-Ds" line reads.
type Report struct {
	Transferred uint64
	Requested   uint64
	Elapsed     time.Duration
}

func (r Report) line(verb string) string {
	seconds := uint64(r.Elapsed.Seconds()) + 1
	return fmt.Sprintf("%s %d of %d block(s) in +-%ds", verb, r.Transferred, r.Requested, seconds)
}

// PushString renders the report the way Push's CLI caller prints it.
func (r Report) PushString() string { return r.line("Pushed") }

// PullString renders the report the way Pull's CLI caller prints it.
func (r Report) PullString() string { return r.line("Pulled") }

// Push streams path's contents to the card starting at logical block
// startBlock. The returned Report always reflects how many blocks were
// actually written, even on early termination.
func Push(ctx context.Context, sess *session.Session, path string, startBlock uint32) (Report, error) {
	started := time.Now()

	file, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Report{}, err
	}
	blockLen := int64(sess.BlockLength)
	count := uint64(info.Size() / blockLen)
	if info.Size()%blockLen != 0 {
		count++
	}

	address := sess.WireAddress(startBlock)
	buf := make([]byte, sess.BlockLength)
	var index uint64
	var retries uint32

	for index < count {
		if err := ctx.Err(); err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}

		for i := range buf {
			buf[i] = 0
		}
		n, readErr := readFull(file, buf)
		if n < len(buf) {
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, readErr
			}
			if index+1 < count {
				return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)},
					fmt.Errorf("transfer: file truncated")
			}
		}

		if err := sdproto.SendCommand(sess.Descriptor, cmdWriteBlock, address); err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}
		r1, err := sdproto.ReadR1(sess.Descriptor)
		if err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}
		if !r1.Ready() {
			if retries < sess.RetryCount {
				retries++
				// Rewind so the retry resends this same block.
				if _, err := file.Seek(-int64(n), io.SeekCurrent); err != nil {
					return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
				}
				continue
			}
			reportBadBlock(sess, address)
			retries = 0
			break
		}

		status, err := sdproto.WriteDataBlock(sess.Descriptor, buf)
		if err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}
		if status != sdproto.WriteAccepted {
			if retries < sess.RetryCount {
				retries++
				if _, err := file.Seek(-int64(n), io.SeekCurrent); err != nil {
					return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
				}
				continue
			}
			reportBadBlock(sess, address)
			retries = 0
			break
		}

		if sess.Interrupted.Load() {
			sess.Interrupted.Store(false)
			break
		}

		address = sess.NextAddress(address)
		index++
	}

	return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, nil
}

// Pull reads count blocks from the card starting at logical block
// startBlock into path.
func Pull(ctx context.Context, sess *session.Session, startBlock uint32, count uint64, path string) (Report, error) {
	started := time.Now()

	file, err := os.Create(path)
	if err != nil {
		return Report{}, err
	}
	defer file.Close()

	address := sess.WireAddress(startBlock)
	var index uint64
	var retries uint32

	for index < count {
		if err := ctx.Err(); err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}

		if err := sdproto.SendCommand(sess.Descriptor, cmdReadBlock, address); err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}
		db, err := sdproto.ReadDataBlock(sess.Descriptor, int(sess.BlockLength))
		if err != nil && !errors.Is(err, sdproto.ErrNotReady) {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}
		badBlock := err != nil || !db.R1.Ready() || db.Token != sdproto.TokenStart

		var payload []byte
		if badBlock {
			if retries < sess.RetryCount {
				retries++
				continue
			}
			reportBadBlock(sess, address)
			retries = 0

			if !sess.FaultTolerant {
				break
			}
			payload = make([]byte, sess.BlockLength)
		} else {
			payload = db.Payload
		}

		if _, err := file.Write(payload); err != nil {
			return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, err
		}

		if sess.Interrupted.Load() {
			sess.Interrupted.Store(false)
			break
		}

		address = sess.NextAddress(address)
		index++
	}

	return Report{Transferred: index, Requested: count, Elapsed: time.Since(started)}, nil
}

// reportBadBlock prints the logical block address of a bad block to
// stderr, matching the source tool's printBadBlockWarning (which divides
// by BlockLength only for standard-capacity cards).
func reportBadBlock(sess *session.Session, wireAddress uint32) {
	fmt.Fprintf(os.Stderr, "Bad Block: %d\n", sess.LogicalAddress(wireAddress))
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
