package fields

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/refcache"
	"github.com/CalistaF0X/basetable/pkg/registry"
	"github.com/CalistaF0X/basetable/pkg/schema"
	"github.com/CalistaF0X/basetable/pkg/upload"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func TestBuild_OrderAndGroups(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{
		{Name: "title", Type: schema.TypeText},
		{Name: "width", Type: schema.TypeNumber, Group: "Dimensions"},
		{Name: "height", Type: schema.TypeNumber, Group: "Dimensions"},
		{Name: "active", Type: schema.TypeCheckbox},
	}
	form, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := m.Names(), []string{"title", "width", "height", "active"}; !cmp.Equal(got, want) {
		t.Fatalf("field order mismatch:\n%s", cmp.Diff(want, got))
	}

	var groups []*dom.Node
	for _, child := range form.Children() {
		if child.Attr("data-group") != "" {
			groups = append(groups, child)
		}
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group container, got %d", len(groups))
	}
	inGroup := 0
	for _, child := range groups[0].Children() {
		if child.Attr("data-field") != "" {
			inGroup++
		}
	}
	if inGroup != 2 {
		t.Fatalf("expected both dimension fields in the group, got %d", inGroup)
	}
}

func TestBuild_ConstructionFailureFallsBackToText(t *testing.T) {
	// Image fields need an upload transport; without one the constructor
	// fails and the field degrades to a plain text control.
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{
		{Name: "photos", Type: schema.TypeImage},
		{Name: "title", Type: schema.TypeText},
	}
	_, m, err := f.Build(reg, defs, map[string]any{"title": "hat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected both controllers, got %d", m.Len())
	}
	if got := m.Get("photos").Control().Kind; got != dom.KindInput {
		t.Fatalf("fallback control kind = %v, want input", got)
	}
	if got := m.Get("title").Value(); got != "hat" {
		t.Fatalf("sibling field value = %v, want hat", got)
	}
}

func TestPrice_InitialValue(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{Name: "price", Type: schema.TypePrice, Precision: 0}}
	_, m, err := f.Build(reg, defs, map[string]any{"price": "1234.5"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("price")
	if got := ctrl.Value(); got != "1235" {
		t.Fatalf("canonical value = %v, want 1235", got)
	}
	if got := digitsOf(ctrl.Control().Value); got != "1235" {
		t.Fatalf("display digits = %q, want 1235", got)
	}
	if !strings.ContainsRune(ctrl.Control().Value, ' ') &&
		!strings.ContainsRune(ctrl.Control().Value, ' ') &&
		!strings.ContainsRune(ctrl.Control().Value, ' ') {
		t.Fatalf("display %q carries no grouping separator", ctrl.Control().Value)
	}
}

func TestPrice_RemaskOnInput(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{Name: "price", Type: schema.TypePrice, Precision: 2}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("price")
	display := ctrl.Control()

	display.Value = "$ 99,90 usd"
	dom.Dispatch(display, &dom.Event{Kind: dom.EventInput})
	if got := ctrl.Value(); got != "99.90" {
		t.Fatalf("canonical after masking = %v, want 99.90", got)
	}

	display.Value = "no digits"
	dom.Dispatch(display, &dom.Event{Kind: dom.EventInput})
	if got := ctrl.Value(); got != "" {
		t.Fatalf("canonical for unparsable input = %v, want empty", got)
	}
	if display.Value != "" {
		t.Fatalf("display not cleared for unparsable input: %q", display.Value)
	}
}

func TestPrice_MaskFuncReplacesBuiltin(t *testing.T) {
	calls := 0
	f := NewFactory(WithMaskFunc(func(display, hidden *dom.Node, field schema.Field) {
		calls++
	}))
	reg := registry.New()

	defs := []schema.Field{{Name: "price", Type: schema.TypePrice}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if calls != 1 {
		t.Fatalf("mask func called %d times, want 1", calls)
	}

	ctrl := m.Get("price")
	ctrl.Control().Value = "1234"
	dom.Dispatch(ctrl.Control(), &dom.Event{Kind: dom.EventInput})
	if got := ctrl.Value(); got != "" {
		t.Fatalf("built-in mask ran despite plugin: canonical = %v", got)
	}
}

func TestPrice_TeardownStopsMasking(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{Name: "price", Type: schema.TypePrice, Precision: 0}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reg.ReleaseAll()

	ctrl := m.Get("price")
	ctrl.Control().Value = "500"
	dom.Dispatch(ctrl.Control(), &dom.Event{Kind: dom.EventInput})
	if got := ctrl.Value(); got != "" {
		t.Fatalf("mask still live after teardown: canonical = %v", got)
	}
}

func TestSelect_StaticOptions(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{
		Name: "size",
		Type: schema.TypeSelect,
		Options: []any{
			map[string]any{"value": "s", "name": "Small"},
			map[string]any{"value": "l", "name": "Large"},
		},
	}}
	_, m, err := f.Build(reg, defs, map[string]any{"size": "l"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("size").(*selectController)
	if got, want := ctrl.Options(), []string{"s", "l"}; !cmp.Equal(got, want) {
		t.Fatalf("options mismatch:\n%s", cmp.Diff(want, got))
	}
	if got := ctrl.Value(); got != "l" {
		t.Fatalf("selected value = %v, want l", got)
	}
}

func TestSelect_ReferencePopulation(t *testing.T) {
	cache := refcache.New()
	cache.Register("cats", func(ctx context.Context) (any, error) {
		return []any{
			map[string]any{"value": float64(1), "name": "A"},
			map[string]any{"value": float64(2), "name": "B"},
		}, nil
	})

	f := NewFactory(WithReferenceCache(cache))
	reg := registry.New()

	defs := []schema.Field{{Name: "cat", Type: schema.TypeSelect, Ref: "cats"}}
	_, m, err := f.Build(reg, defs, map[string]any{"cat": float64(2)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("cat").(*selectController)

	waitFor(t, func() bool { return len(ctrl.Options()) == 2 })
	if got, want := ctrl.Options(), []string{"1", "2"}; !cmp.Equal(got, want) {
		t.Fatalf("option values mismatch:\n%s", cmp.Diff(want, got))
	}
	var labels []string
	for _, opt := range ctrl.Control().Children() {
		if opt.Value != "" {
			labels = append(labels, opt.Text)
		}
	}
	if want := []string{"A", "B"}; !cmp.Equal(labels, want) {
		t.Fatalf("option labels mismatch:\n%s", cmp.Diff(want, labels))
	}
	if got := ctrl.Value(); got != "2" {
		t.Fatalf("selection not preserved across population: %v", got)
	}
}

func TestSelect_TeardownMidLoadKeepsCacheUsable(t *testing.T) {
	release := make(chan struct{})
	cache := refcache.New()
	cache.Register("cats", func(ctx context.Context) (any, error) {
		<-release
		return []any{map[string]any{"value": "1", "name": "A"}}, nil
	})

	f := NewFactory(WithReferenceCache(cache))
	reg := registry.New()

	defs := []schema.Field{{Name: "cat", Type: schema.TypeSelect, Ref: "cats"}}
	if _, _, err := f.Build(reg, defs, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The dialog closes while the reference is still loading.
	reg.ReleaseAll()
	close(release)

	options, err := cache.EnsureLoaded(context.Background(), "cats")
	if err != nil {
		t.Fatalf("EnsureLoaded after teardown: %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("expected the registered option, got %v", options)
	}
	if got := cache.State("cats"); got != refcache.StateLoaded {
		t.Fatalf("expected loaded state, got %s", got)
	}
}

func TestSelect_SearchFiltersByLabel(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{
		Name:       "city",
		Type:       schema.TypeSelect,
		Searchable: true,
		Options: []any{
			map[string]any{"value": "m", "name": "Moscow"},
			map[string]any{"value": "p", "name": "Prague"},
		},
	}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("city").(*selectController)

	ctrl.search.Value = "pra"
	dom.Dispatch(ctrl.search, &dom.Event{Kind: dom.EventInput})

	visible := map[string]bool{}
	for _, opt := range ctrl.Control().Children() {
		if opt.Value != "" {
			visible[opt.Value] = !opt.Hidden
		}
	}
	if visible["m"] || !visible["p"] {
		t.Fatalf("filter state wrong: %v", visible)
	}

	ctrl.search.Value = ""
	dom.Dispatch(ctrl.search, &dom.Event{Kind: dom.EventInput})
	for _, opt := range ctrl.Control().Children() {
		if opt.Hidden {
			t.Fatalf("option %q still hidden after clearing the query", opt.Value)
		}
	}
}

func TestMultiSelect_SerializesCheckedInOrder(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{
		Name:    "tags",
		Type:    schema.TypeMultiSelect,
		Options: []any{"red", "green", "blue"},
	}}
	_, m, err := f.Build(reg, defs, map[string]any{"tags": []any{"blue", "red"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := m.Get("tags").Value()
	// Order follows the option list, not the item.
	if want := []string{"red", "blue"}; !cmp.Equal(got, want) {
		t.Fatalf("multiselect value mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestJSON_EditorRoundTrip(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{Name: "meta", Type: schema.TypeJSON}}
	_, m, err := f.Build(reg, defs, map[string]any{"meta": `{"b":"2","a":"1"}`})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("meta").(*jsonController)

	// Source key order survives the row representation.
	if got := ctrl.Value(); got != `{"b":"2","a":"1"}` {
		t.Fatalf("initial serialization = %v", got)
	}

	// Editing a value reserializes on the bubbled input event.
	rows := ctrl.rows.Children()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, child := range rows[0].Children() {
		if child.HasClass("kv-value") {
			child.Value = "20"
			dom.Dispatch(child, &dom.Event{Kind: dom.EventInput})
		}
	}
	if got := ctrl.Value(); got != `{"b":"20","a":"1"}` {
		t.Fatalf("after edit = %v", got)
	}
}

func TestJSON_EmptyKeysExcluded(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{{Name: "meta", Type: schema.TypeJSON}}
	form, m, err := f.Build(reg, defs, map[string]any{"meta": "not json at all"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("meta").(*jsonController)
	if got := ctrl.Value(); got != "{}" {
		t.Fatalf("malformed input should start empty, got %v", got)
	}

	var addButton *dom.Node
	form.Walk(func(n *dom.Node) bool {
		if n.Attr("data-action") == "add-row" {
			addButton = n
			return false
		}
		return true
	})
	if addButton == nil {
		t.Fatal("add-row button not found")
	}
	dom.Dispatch(addButton, &dom.Event{Kind: dom.EventClick})
	if got := ctrl.Value(); got != "{}" {
		t.Fatalf("empty-key row leaked into serialization: %v", got)
	}
}

func TestImage_DropUploadsAndSerializes(t *testing.T) {
	transport := &stubTransport{path: "/img/a.png"}
	f := NewFactory(WithUploadTransport(transport))
	reg := registry.New()

	defs := []schema.Field{{Name: "photos", Type: schema.TypeImage, Category: "goods"}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("photos").(*imageController)

	dom.Dispatch(ctrl.zone, &dom.Event{
		Kind:  dom.EventDrop,
		Files: []dom.File{{Name: "a.png", Content: []byte{1, 2}}},
	})
	waitFor(t, func() bool { return ctrl.Value() == `["/img/a.png"]` })
	if transport.category != "goods" {
		t.Fatalf("category = %q, want goods", transport.category)
	}
}

func TestImage_BrowseInvokesPicker(t *testing.T) {
	f := NewFactory(
		WithUploadTransport(&stubTransport{}),
		WithBrowseFunc(func(field schema.Field) []dom.File {
			return []dom.File{{Name: "picked.png", Content: []byte{9}}}
		}),
	)
	reg := registry.New()

	defs := []schema.Field{{Name: "photos", Type: schema.TypeImage}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("photos").(*imageController)

	var browse *dom.Node
	ctrl.zone.Walk(func(n *dom.Node) bool {
		if n.Attr("data-action") == "browse" {
			browse = n
			return false
		}
		return true
	})
	if browse == nil {
		t.Fatal("browse button not found")
	}
	dom.Dispatch(browse, &dom.Event{Kind: dom.EventClick})
	waitFor(t, func() bool { return ctrl.Value() == `["/uploaded/picked.png"]` })
}

func TestImage_BrowseClickAcceptsCarriedFiles(t *testing.T) {
	f := NewFactory(WithUploadTransport(&stubTransport{}))
	reg := registry.New()

	defs := []schema.Field{{Name: "photos", Type: schema.TypeImage}}
	_, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("photos").(*imageController)

	var browse *dom.Node
	ctrl.zone.Walk(func(n *dom.Node) bool {
		if n.Attr("data-action") == "browse" {
			browse = n
			return false
		}
		return true
	})
	if browse == nil {
		t.Fatal("browse button not found")
	}
	dom.Dispatch(browse, &dom.Event{
		Kind:  dom.EventClick,
		Files: []dom.File{{Name: "c.png", Content: []byte{3}}},
	})
	waitFor(t, func() bool { return ctrl.Value() == `["/uploaded/c.png"]` })
}

func TestImage_ExistingPathsPreload(t *testing.T) {
	f := NewFactory(WithUploadTransport(&stubTransport{}))
	reg := registry.New()

	defs := []schema.Field{{Name: "photos", Type: schema.TypeImage}}
	_, m, err := f.Build(reg, defs, map[string]any{"photos": `["/a.png","/b.png"]`})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := m.Get("photos").Value(); got != `["/a.png","/b.png"]` {
		t.Fatalf("preloaded value = %v", got)
	}
}

func TestImage_ThumbButtonsDelegate(t *testing.T) {
	f := NewFactory(WithUploadTransport(&stubTransport{}))
	reg := registry.New()

	defs := []schema.Field{{Name: "photos", Type: schema.TypeImage}}
	_, m, err := f.Build(reg, defs, map[string]any{"photos": `["/a.png","/b.png"]`})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctrl := m.Get("photos").(*imageController)

	var promote *dom.Node
	ctrl.thumbs.Walk(func(n *dom.Node) bool {
		if n.Attr("data-action") == "promote" && promote == nil {
			card := n.Parent()
			if card != nil && card.Attr("data-state") == string(upload.StateDone) {
				// Second card's promote button moves /b.png first.
				if img := card.Children()[0]; img.Attr("src") == "/b.png" {
					promote = n
					return false
				}
			}
		}
		return true
	})
	if promote == nil {
		t.Fatal("promote button for /b.png not found")
	}
	dom.Dispatch(promote, &dom.Event{Kind: dom.EventClick})
	if got := ctrl.Value(); got != `["/b.png","/a.png"]` {
		t.Fatalf("promote did not reorder: %v", got)
	}
}

func TestSerialize_Coercions(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{
		{Name: "title", Type: schema.TypeText},
		{Name: "active", Type: schema.TypeCheckbox},
		{Name: "qty", Type: schema.TypeNumber},
		{Name: "note", Type: schema.TypeNumber},
	}
	item := map[string]any{
		"title":  "hat",
		"active": true,
		"qty":    float64(3),
	}
	_, m, err := f.Build(reg, defs, item)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := m.Serialize()
	want := map[string]any{
		"title":  "hat",
		"active": true,
		"qty":    float64(3),
		"note":   nil,
	}
	if !cmp.Equal(got, want) {
		t.Fatalf("payload mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestValidate_RequiredDispatchesInvalid(t *testing.T) {
	f := NewFactory()
	reg := registry.New()

	defs := []schema.Field{
		{Name: "title", Type: schema.TypeText, Required: true},
		{Name: "active", Type: schema.TypeCheckbox, Required: true},
	}
	form, m, err := f.Build(reg, defs, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	failed := m.Validate()
	if want := []string{"title"}; !cmp.Equal(failed, want) {
		t.Fatalf("failed fields mismatch:\n%s", cmp.Diff(want, failed))
	}

	var hint *dom.Node
	form.Walk(func(n *dom.Node) bool {
		if n.HasClass("field-hint") && !n.Hidden {
			hint = n
			return false
		}
		return true
	})
	if hint == nil {
		t.Fatal("invalid event did not reveal the hint")
	}

	// Typing hides the hint again.
	title := m.Get("title").Control()
	title.Value = "x"
	dom.Dispatch(title, &dom.Event{Kind: dom.EventInput})
	if !hint.Hidden {
		t.Fatal("hint still visible after input")
	}
}

type stubTransport struct {
	path     string
	category string
}

func (s *stubTransport) Upload(ctx context.Context, file dom.File, category string) (string, error) {
	s.category = category
	if s.path == "" {
		return "/uploaded/" + file.Name, nil
	}
	return s.path, nil
}
