package glyph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// buildPersonRegistry compiles a minimal two-type, one-edge-type schema by
// hand (bypassing pkg/compiler) so pkg/glyph can be tested in isolation.
func buildPersonRegistry(t *testing.T) (*registry.Registry, values.TypeId, values.TypeId, values.EdgeTypeId, values.AttrId, values.AttrId) {
	t.Helper()
	const personType values.TypeId = 1
	const orgType values.TypeId = 2
	const worksAt values.EdgeTypeId = 1
	const nameAttr values.AttrId = 1
	const emailAttr values.AttrId = 2

	b := registry.NewBuilder()
	b.AddNodeType(&registry.NodeTypeDef{
		ID: personType, Name: "Person", FamilyRoot: personType,
		AllAttrs: []registry.AttrDef{
			{ID: nameAttr, Name: "name", Scalar: values.KindString},
			{ID: emailAttr, Name: "email", Scalar: values.KindString, Unique: true},
		},
	})
	b.AddNodeType(&registry.NodeTypeDef{
		ID: orgType, Name: "Org", FamilyRoot: orgType,
	})
	b.AddEdgeType(&registry.EdgeTypeDef{
		ID: worksAt, Name: "works_at",
		Positions: []registry.PositionDef{
			{Name: "employee", TargetType: personType, Cardinality: registry.Cardinality{Min: 0, Max: -1}},
			{Name: "employer", TargetType: orgType, Cardinality: registry.Cardinality{Min: 0, Max: -1}},
		},
	})
	reg, err := b.Build()
	require.NoError(t, err)
	return reg, personType, orgType, worksAt, nameAttr, emailAttr
}

func TestGraphCreateNodeAndReadAttr(t *testing.T) {
	reg, personType, _, _, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	id, err := g.CreateNode(personType, map[string]values.Value{
		"name":  values.NewString("Ada"),
		"email": values.NewString("ada@example.com"),
	})
	require.NoError(t, err)
	assert.True(t, g.Alive(id))

	v, ok, err := g.Attr(id, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", v.AsString())
}

func TestGraphUniqueAttrRejectsDuplicate(t *testing.T) {
	reg, personType, _, _, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	_, err := g.CreateNode(personType, map[string]values.Value{"email": values.NewString("dup@example.com")})
	require.NoError(t, err)

	second, err := g.CreateNode(personType, map[string]values.Value{"email": values.NewString("other@example.com")})
	require.NoError(t, err)
	err = g.SetAttr(second, "email", values.NewString("dup@example.com"))
	assert.Error(t, err)
}

func TestGraphKillIsUseAfterKillSafe(t *testing.T) {
	reg, personType, _, _, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	id, err := g.CreateNode(personType, nil)
	require.NoError(t, err)
	require.NoError(t, g.Kill(id))
	assert.False(t, g.Alive(id))

	_, _, err = g.Attr(id, "name")
	assert.Error(t, err)

	// a fresh glyph reusing the same arena slot must not resolve to the
	// stale id's generation.
	fresh, err := g.CreateNode(personType, nil)
	require.NoError(t, err)
	if fresh.Slot() == id.Slot() {
		assert.NotEqual(t, id, fresh)
	}
}

func TestGraphCreateEdgeAndNeighbors(t *testing.T) {
	reg, personType, orgType, worksAt, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	person, err := g.CreateNode(personType, nil)
	require.NoError(t, err)
	org, err := g.CreateNode(orgType, nil)
	require.NoError(t, err)

	edge, err := g.CreateEdge(worksAt, []values.GlyphId{person, org}, nil)
	require.NoError(t, err)

	targets, err := g.Targets(edge)
	require.NoError(t, err)
	assert.Equal(t, []values.GlyphId{person, org}, targets)

	neighbors := g.Neighbors(person, worksAt)
	require.Len(t, neighbors, 1)
	assert.Equal(t, edge, neighbors[0])
}

func TestGraphCreateEdgeRejectsWrongPositionType(t *testing.T) {
	reg, personType, orgType, worksAt, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	p1, err := g.CreateNode(personType, nil)
	require.NoError(t, err)
	p2, err := g.CreateNode(personType, nil)
	require.NoError(t, err)

	_, err = g.CreateEdge(worksAt, []values.GlyphId{p1, p2}, nil)
	assert.Error(t, err)

	org, err := g.CreateNode(orgType, nil)
	require.NoError(t, err)
	_, err = g.CreateEdge(worksAt, []values.GlyphId{p1, org}, nil)
	assert.NoError(t, err)
}

func TestGraphIterTypeVisitsOnlyLiveGlyphsOfType(t *testing.T) {
	reg, personType, orgType, _, _, _ := buildPersonRegistry(t)
	g := glyph.NewGraph(reg)

	for i := 0; i < 3; i++ {
		_, err := g.CreateNode(personType, nil)
		require.NoError(t, err)
	}
	_, err := g.CreateNode(orgType, nil)
	require.NoError(t, err)

	count := 0
	g.IterType(personType, func(values.GlyphId) bool {
		count++
		return true
	})
	assert.Equal(t, 3, count)
}
