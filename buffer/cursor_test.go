package buffer

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func newPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/256)
	}
	return b
}

// splitRandom cuts data into fragments of random length (at least 1 byte).
func splitRandom(rng *rand.Rand, data []byte, maxFrag int) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := 1 + rng.Intn(maxFrag)
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func newCursor(t *testing.T, frags ...[]byte) (*Sequence, *Cursor) {
	t.Helper()
	seq := NewSequence()
	for _, f := range frags {
		if err := seq.AddChunk(Borrow(f)); err != nil {
			t.Fatalf("add chunk: %v", err)
		}
	}
	return seq, NewCursor(seq)
}

// ── Unit tests ────────────────────────────────────────────────────────────────

func TestReadAtLeastNAcrossChunks(t *testing.T) {
	_, c := newCursor(t, []byte("ab"), []byte("cd"), []byte("ef"))

	b, res := c.ReadAtLeastN(5)
	if !res.IsOK() || res.N() != 5 {
		t.Fatalf("ReadAtLeastN: got %v", res)
	}
	if string(b) != "abcde" {
		t.Errorf("bytes: got %q, want %q", b, "abcde")
	}
	if c.Buffered() != 1 {
		t.Errorf("buffered: got %d, want 1", c.Buffered())
	}
}

func TestPendingVersusEOF(t *testing.T) {
	seq, c := newCursor(t, []byte("abc"))

	if _, res := c.ReadAtLeastN(4); !res.IsPending() {
		t.Fatalf("before eof: got %v, want pending", res)
	}
	seq.SendEof()
	if _, res := c.ReadAtLeastN(4); !res.IsEOF() {
		t.Fatalf("after eof: got %v, want eof", res)
	}
	if _, res := c.ReadAtLeastN(3); !res.IsOK() {
		t.Fatalf("exact remainder after eof: got %v, want ok", res)
	}
	if _, res := c.ReadSome(); !res.IsEOF() {
		t.Fatalf("exhausted: got %v, want eof", res)
	}
	if !c.EofReached() {
		t.Error("EofReached should be true")
	}
}

func TestAddChunkAfterEOF(t *testing.T) {
	seq := NewSequence()
	seq.SendEof()
	err := seq.AddChunk(Copy([]byte("x")))
	if !errors.Is(err, apperrors.ErrInputClosed) {
		t.Fatalf("got %v, want ErrInputClosed", err)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	_, c := newCursor(t, []byte("GIF"), []byte("89a"))
	buf := make([]byte, 6)
	if res := c.PeekAtLeastNInto(buf, 6); !res.IsOK() {
		t.Fatalf("peek: %v", res)
	}
	if string(buf) != "GIF89a" {
		t.Errorf("peek bytes: got %q", buf)
	}
	if c.Offset() != 0 {
		t.Errorf("offset after peek: got %d, want 0", c.Offset())
	}
}

func TestUnreadNExact(t *testing.T) {
	data := newPayload(300)
	rng := rand.New(rand.NewSource(7))
	_, c := newCursor(t, splitRandom(rng, data, 17)...)

	first, _ := c.ReadAtLeastN(120)
	first = bytes.Clone(first)
	if got := c.UnreadN(50); got != 50 {
		t.Fatalf("UnreadN: got %d, want 50", got)
	}
	again, res := c.ReadAtLeastN(50)
	if !res.IsOK() {
		t.Fatalf("reread: %v", res)
	}
	if !bytes.Equal(again, first[70:]) {
		t.Error("bytes after unread differ from the originals")
	}
}

func TestUnreadNCappedAtCommit(t *testing.T) {
	_, c := newCursor(t, newPayload(64))
	c.SkipN(10)
	c.Commit()
	c.SkipN(5)
	if got := c.UnreadN(100); got != 5 {
		t.Fatalf("UnreadN: got %d, want 5", got)
	}
	if c.Offset() != 10 {
		t.Errorf("offset: got %d, want 10", c.Offset())
	}
}

func TestCommitReleasesChunks(t *testing.T) {
	seq, c := newCursor(t, []byte("aaaa"), []byte("bbbb"), []byte("cccc"))
	c.SkipN(9)
	c.Commit()
	if seq.Chunks() != 1 {
		t.Fatalf("chunks retained: got %d, want 1", seq.Chunks())
	}
	if seq.Retained() != 4 {
		t.Errorf("bytes retained: got %d, want 4", seq.Retained())
	}
	b, _ := c.ReadAtLeastN(3)
	if string(b) != "ccc" {
		t.Errorf("after commit: got %q, want %q", b, "ccc")
	}
}

func TestMergeProducesOwnedChunk(t *testing.T) {
	seq, c := newCursor(t, []byte("ab"), []byte("cd"))
	c.ReadAtLeastN(3)
	if seq.Chunks() != 1 {
		t.Fatalf("chunks after merge: got %d, want 1", seq.Chunks())
	}
	if seq.chunks[0].Ownership() != Owned {
		t.Error("merged chunk should be owned")
	}
}

// ── Property tests ────────────────────────────────────────────────────────────

// Any split of the input and any mix of read sizes must yield the same bytes.
func TestChunkSplitInvariance(t *testing.T) {
	data := newPayload(4096)
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		seq, c := newCursor(t, splitRandom(rng, data, 300)...)
		seq.SendEof()

		var got []byte
		for !c.EofReached() {
			want := 1 + rng.Intn(700)
			if want > c.Buffered() {
				want = c.Buffered()
			}
			switch rng.Intn(4) {
			case 0:
				b, res := c.ReadSome()
				if !res.IsOK() {
					t.Fatalf("seed %d: ReadSome: %v", seed, res)
				}
				got = append(got, b...)
			case 1:
				b, res := c.ReadAtMostN(want)
				if !res.IsOK() || len(b) > want {
					t.Fatalf("seed %d: ReadAtMostN(%d): %v len %d", seed, want, res, len(b))
				}
				got = append(got, b...)
			case 2:
				b, res := c.ReadAtLeastN(want)
				if !res.IsOK() || len(b) != want {
					t.Fatalf("seed %d: ReadAtLeastN(%d): %v len %d", seed, want, res, len(b))
				}
				got = append(got, b...)
			default:
				buf := make([]byte, want)
				if res := c.ReadAtLeastNInto(buf, want); !res.IsOK() {
					t.Fatalf("seed %d: ReadAtLeastNInto(%d): %v", seed, want, res)
				}
				got = append(got, buf...)
			}
			if rng.Intn(5) == 0 {
				c.Commit()
			}
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("seed %d: reassembled bytes differ from input", seed)
		}
	}
}

// Reading n bytes and unreading n restores the position exactly.
func TestUnreadRestoresPosition(t *testing.T) {
	data := newPayload(2048)
	rng := rand.New(rand.NewSource(99))
	_, c := newCursor(t, splitRandom(rng, data, 97)...)

	for i := 0; i < 200; i++ {
		before := c.Offset()
		n := 1 + rng.Intn(150)
		if c.Buffered() < n {
			break
		}
		c.ReadAtLeastN(n)
		if got := c.UnreadN(n); got != n {
			t.Fatalf("UnreadN(%d): moved %d", n, got)
		}
		if c.Offset() != before {
			t.Fatalf("offset: got %d, want %d", c.Offset(), before)
		}
		b, _ := c.ReadAtMostN(1 + rng.Intn(40))
		if !bytes.Equal(b, data[before:before+int64(len(b))]) {
			t.Fatalf("bytes at %d differ after rewind", before)
		}
	}
}
