package core

import (
	"bytes"
	"errors"
	"testing"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

func TestMetadataAppendAfterFreeze(t *testing.T) {
	md := NewMetadata()
	if err := md.Append(MetadataICC, []byte("part1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := md.Append(MetadataICC, []byte("part2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	md.Freeze(MetadataICC)

	err := md.Append(MetadataICC, []byte("late"))
	if !errors.Is(err, apperrors.ErrMetadataFrozen) {
		t.Fatalf("append after freeze: got %v, want ErrMetadataFrozen", err)
	}
	if got := md.Bytes(MetadataICC); !bytes.Equal(got, []byte("part1part2")) {
		t.Errorf("icc: got %q", got)
	}
}

func TestMetadataIsAllCompleted(t *testing.T) {
	md := NewMetadata()
	if !md.IsAllCompleted() {
		t.Error("empty holder should be complete")
	}
	md.Append(MetadataEXIF, []byte{1})
	if md.IsAllCompleted() {
		t.Error("appended but unfrozen kind should keep holder incomplete")
	}
	md.Freeze(MetadataEXIF)
	if !md.IsAllCompleted() {
		t.Error("all touched kinds frozen: want complete")
	}
	if md.Sealed() {
		t.Error("holder should not be sealed before FreezeAll")
	}
	md.FreezeAll()
	if !md.Sealed() || !md.IsFrozen(MetadataXMP) {
		t.Error("FreezeAll should seal and freeze every kind")
	}
}

func TestOutcomeString(t *testing.T) {
	cases := []struct {
		o    Outcome
		want string
	}{
		{OK(3), "ok(3)"},
		{Pending(), "pending"},
		{EOF(), "eof"},
	}
	for _, c := range cases {
		if c.o.String() != c.want {
			t.Errorf("got %q, want %q", c.o.String(), c.want)
		}
	}
}
