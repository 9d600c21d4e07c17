package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeLines() Lines {
	return Lines{
		{ID: "a", Type: H1, Content: "title"},
		{ID: "b", Type: Paragraph, Content: "one"},
		{ID: "c", Type: Paragraph, Content: "two"},
	}
}

func TestLinesIndexOf(t *testing.T) {
	ls := threeLines()
	assert.Equal(t, 0, ls.IndexOf("a"))
	assert.Equal(t, 2, ls.IndexOf("c"))
	assert.Equal(t, -1, ls.IndexOf("missing"))
}

func TestLinesInsertAtDoesNotAlias(t *testing.T) {
	ls := threeLines()
	out := ls.InsertAt(1, Line{ID: "x", Type: Paragraph})

	require.Len(t, out, 4)
	assert.Equal(t, ID("x"), out[1].ID)
	assert.Equal(t, threeLines(), ls)

	out[0].Content = "changed"
	assert.Equal(t, "title", ls[0].Content)
}

func TestLinesInsertAtClampsIndex(t *testing.T) {
	ls := threeLines()
	assert.Equal(t, ID("x"), ls.InsertAt(99, Line{ID: "x"})[3].ID)
	assert.Equal(t, ID("y"), ls.InsertAt(-3, Line{ID: "y"})[0].ID)
}

func TestLinesRemoveBy(t *testing.T) {
	ls := threeLines()
	out := ls.RemoveBy("b")
	assert.Equal(t, Lines{ls[0], ls[2]}, out)
	assert.Len(t, ls, 3)

	assert.Equal(t, ls, ls.RemoveBy("missing"))
}

func TestLinesRemoveByKeepsLastLine(t *testing.T) {
	ls := Lines{{ID: "only", Type: H1}}
	assert.Equal(t, ls, ls.RemoveBy("only"))
}

func TestLinesUpdateBy(t *testing.T) {
	ls := threeLines()
	out := ls.UpdateBy("b", func(l Line) Line {
		l.Content = "patched"
		l.ID = "sneaky"
		return l
	})
	assert.Equal(t, "patched", out[1].Content)
	assert.Equal(t, ID("b"), out[1].ID, "patches cannot change identity")
	assert.Equal(t, "one", ls[1].Content)
}

func TestLinesNeighborOf(t *testing.T) {
	ls := threeLines()
	assert.Equal(t, ID("a"), ls.NeighborOf("b", Up))
	assert.Equal(t, ID("c"), ls.NeighborOf("b", Down))
	assert.Equal(t, ID("a"), ls.NeighborOf("a", Up))
	assert.Equal(t, ID("c"), ls.NeighborOf("c", Down))
	assert.Equal(t, ID("zz"), ls.NeighborOf("zz", Down))
}

func TestSeqGeneratorIsUnique(t *testing.T) {
	g := &SeqGenerator{Prefix: "t"}
	seen := map[ID]bool{}
	for rep := 0; rep < 100; rep++ {
		id := g.NewID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestUUIDGeneratorIsUnique(t *testing.T) {
	var g UUIDGenerator
	ids := make(chan ID, 200)
	done := make(chan struct{})
	for rep := 0; rep < 4; rep++ {
		go func() {
			for rep := 0; rep < 50; rep++ {
				ids <- g.NewID()
			}
			done <- struct{}{}
		}()
	}
	for rep := 0; rep < 4; rep++ {
		<-done
	}
	close(ids)
	seen := map[ID]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}
