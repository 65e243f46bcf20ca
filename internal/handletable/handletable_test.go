package handletable

import (
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_AssignsIncreasingHandles(t *testing.T) {
	tb := New()

	h1 := tb.Insert(&Entry{Inode: 10})
	h2 := tb.Insert(&Entry{Inode: 11})

	assert.Less(t, h1, h2)
	assert.NotZero(t, h1)
}

func TestInsert_HandlesAreNeverReused(t *testing.T) {
	tb := New()

	h1 := tb.Insert(&Entry{Inode: 10})
	tb.Remove(h1)
	h2 := tb.Insert(&Entry{Inode: 10})

	assert.NotEqual(t, h1, h2)
}

func TestGet_ReturnsInstalledEntry(t *testing.T) {
	tb := New()
	h := tb.Insert(&Entry{Inode: 42, Mode: ReadWrite})

	e, ok := tb.Get(h)

	require.True(t, ok)
	assert.Equal(t, fuseops.InodeID(42), e.Inode)
	assert.True(t, e.Mode.Writable())
}

func TestGet_UnknownHandleNotFound(t *testing.T) {
	tb := New()

	_, ok := tb.Get(999)

	assert.False(t, ok)
}

func TestRemove_IsIdempotent(t *testing.T) {
	tb := New()
	h := tb.Insert(&Entry{Inode: 1})

	tb.Remove(h)
	tb.Remove(h)

	_, ok := tb.Get(h)
	assert.False(t, ok)
}

func TestAnyForInode_TrueWhenAnotherHandleOwnsIt(t *testing.T) {
	tb := New()
	h1 := tb.Insert(&Entry{Inode: 7})
	h2 := tb.Insert(&Entry{Inode: 7})

	assert.True(t, tb.AnyForInode(7, h1))
	assert.True(t, tb.AnyForInode(7, h2))
}

func TestAnyForInode_FalseWhenOnlyExcludedHandleOwnsIt(t *testing.T) {
	tb := New()
	h := tb.Insert(&Entry{Inode: 7})

	assert.False(t, tb.AnyForInode(7, h))
}

func TestAnyForInode_FalseForUnrelatedInode(t *testing.T) {
	tb := New()
	tb.Insert(&Entry{Inode: 7})

	assert.False(t, tb.AnyForInode(99, 0))
}

func TestAccessMode_Writable(t *testing.T) {
	assert.False(t, ReadOnly.Writable())
	assert.True(t, ReadWrite.Writable())
}
