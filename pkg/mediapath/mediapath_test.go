package mediapath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func TestJoin(t *testing.T) {
	p, err := Join("", "Docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs", p)

	p, err = Join("Docs", "2024")
	require.NoError(t, err)
	assert.Equal(t, "Docs/2024", p)

	p, err = Join("Docs/2024", "Invoices")
	require.NoError(t, err)
	assert.Equal(t, "Docs/2024/Invoices", p)
	assert.Equal(t, 3, Depth(p))

	_, err = Join("Docs/2024/Invoices", "March")
	assert.ErrorIs(t, err, ErrMaxDepth)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", "  ", "a/b", `a\b`, ".", ".."} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
	assert.NoError(t, ValidateName("Site photos"))
}

func TestCheckMove(t *testing.T) {
	subtree := []string{"A/B", "A/B/C"}

	_, err := CheckMove("A", "A/B", subtree)
	assert.ErrorIs(t, err, ErrMoveIntoSelf)

	_, err = CheckMove("A", "A", subtree)
	assert.ErrorIs(t, err, ErrMoveIntoSelf)

	// A/B/C would become X/A/B/C
	_, err = CheckMove("A", "X", subtree)
	assert.ErrorIs(t, err, ErrMaxDepth)

	dst, err := CheckMove("A/B", "", []string{"A/B/C"})
	require.NoError(t, err)
	assert.Equal(t, "B", dst)

	// AB is not a descendant of A
	dst, err = CheckMove("A", "AB", nil)
	require.NoError(t, err)
	assert.Equal(t, "AB/A", dst)
}

func TestRebase(t *testing.T) {
	p, ok := Rebase("A/B/C", "A/B", "X/B")
	assert.True(t, ok)
	assert.Equal(t, "X/B/C", p)

	p, ok = Rebase("A/BC", "A/B", "X/B")
	assert.False(t, ok)
	assert.Equal(t, "A/BC", p)

	p, err := Rename("A/B", "Z")
	require.NoError(t, err)
	assert.Equal(t, "A/Z", p)
}

func TestObjectKey(t *testing.T) {
	key := objectKey(model.OwnerProject, 7, model.MediaPhoto, "Site/North", "abcd1234", "../img 1.jpg")
	assert.Equal(t, "projects/7/photo/Site/North/abcd1234-img 1.jpg", key)

	key = objectKey(model.OwnerCompany, 3, model.MediaDocument, "", "abcd1234", "a?b.pdf")
	assert.Equal(t, "companies/3/document/abcd1234-a_b.pdf", key)

	moved := RekeyObject("companies/3/document/abcd1234-a_b.pdf", model.OwnerCompany, 3,
		model.MediaDocument, "Contracts", "final.pdf")
	assert.Equal(t, "companies/3/document/Contracts/abcd1234-final.pdf", moved)

	assert.Len(t, ObjectKey(model.OwnerProject, 1, model.MediaVideo, "", "v.mp4"), len("projects/1/video/")+8+len("-v.mp4"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, model.MediaPhoto, KindOf("IMG_001.JPG"))
	assert.Equal(t, model.MediaVideo, KindOf("walkthrough.mp4"))
	assert.Equal(t, model.MediaDocument, KindOf("contract.pdf"))
	assert.Equal(t, model.MediaDocument, KindOf("README"))
}
