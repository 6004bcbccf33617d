// Package basetable renders tabular admin data into a document tree and
// drives schema-driven add/edit dialogs against it. A Table owns the shared
// services its widgets draw on: the reference cache, the cell renderer
// registry, the field controller factory and the page-level resource
// registry that Close releases.
package basetable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/CalistaF0X/basetable/internal/envelope"
	"github.com/CalistaF0X/basetable/internal/money"
	"github.com/CalistaF0X/basetable/pkg/cellrender"
	"github.com/CalistaF0X/basetable/pkg/dialog"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/fields"
	"github.com/CalistaF0X/basetable/pkg/refcache"
	"github.com/CalistaF0X/basetable/pkg/registry"
	"github.com/CalistaF0X/basetable/pkg/schema"
	"github.com/CalistaF0X/basetable/pkg/upload"
)

// ErrClosed is returned by operations on a closed table.
var ErrClosed = errors.New("basetable: table closed")

// Table is one admin table instance bound to a document.
type Table struct {
	mu sync.Mutex

	doc       *dom.Document
	container *dom.Node
	tableNode *dom.Node

	columns    []schema.Field
	formFields []schema.Field
	idField    string

	source DataFunc
	create SaveFunc
	update SaveFunc
	remove DeleteFunc

	references     map[string]any
	uploads        upload.Transport
	locale         language.Tag
	logger         *slog.Logger
	alert          func(error)
	maskFunc       fields.MaskFunc
	browseFunc     fields.BrowseFunc
	cellOverrides  map[schema.Type]cellrender.Func
	fieldOverrides map[schema.Type]fields.Constructor

	refs    *refcache.Cache
	cells   *cellrender.Registry
	factory *fields.Factory
	pageReg *registry.Registry

	rows    []map[string]any
	sortCol string
	sortAsc bool
	filter  string
	offset  int
	limit   int

	session *dialog.Session
	closed  bool
}

// New builds a table instance. At least a column schema is required; every
// callback may be left unset and fails as a configuration error only when
// the matching operation runs.
func New(doc *dom.Document, opts ...Option) (*Table, error) {
	if doc == nil {
		return nil, errors.New("basetable: nil document")
	}

	t := &Table{
		doc:            doc,
		idField:        "id",
		locale:         money.DefaultTag,
		logger:         slog.Default(),
		sortAsc:        true,
		references:     make(map[string]any),
		cellOverrides:  make(map[schema.Type]cellrender.Func),
		fieldOverrides: make(map[schema.Type]fields.Constructor),
		pageReg:        registry.New(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if len(t.columns) == 0 {
		return nil, errors.New("basetable: no columns configured")
	}
	if err := schema.Validate(t.columns); err != nil {
		return nil, fmt.Errorf("basetable: columns: %w", err)
	}
	if t.formFields == nil {
		t.formFields = t.columns
	} else if err := schema.Validate(t.formFields); err != nil {
		return nil, fmt.Errorf("basetable: form fields: %w", err)
	}
	if t.alert == nil {
		t.alert = func(err error) { t.logger.Error("alert", "error", err) }
	}
	if t.container == nil {
		t.container = doc.Root().Append(dom.NewNode(dom.KindContainer))
		t.container.AddClass("basetable")
	}

	t.refs = refcache.New(
		refcache.WithLogger(t.logger),
		refcache.WithErrorHook(func(name string, err error) {
			t.alert(fmt.Errorf("basetable: reference %q: %w", name, err))
		}),
	)
	for name, source := range t.references {
		t.refs.Register(name, source)
	}

	t.cells = cellrender.NewRegistry(
		cellrender.WithLocale(t.locale),
		cellrender.WithLogger(t.logger),
	)
	for kind, fn := range t.cellOverrides {
		t.cells.Register(kind, fn)
	}

	factoryOpts := []fields.Option{
		fields.WithReferenceCache(t.refs),
		fields.WithLocale(t.locale),
		fields.WithLogger(t.logger),
	}
	if t.uploads != nil {
		factoryOpts = append(factoryOpts, fields.WithUploadTransport(t.uploads))
	}
	if t.maskFunc != nil {
		factoryOpts = append(factoryOpts, fields.WithMaskFunc(t.maskFunc))
	}
	if t.browseFunc != nil {
		factoryOpts = append(factoryOpts, fields.WithBrowseFunc(t.browseFunc))
	}
	t.factory = fields.NewFactory(factoryOpts...)
	for kind, ctor := range t.fieldOverrides {
		t.factory.RegisterController(kind, ctor)
	}

	// Page-level mask refresh: leaving any masked numeric control re-runs
	// its input pipeline, so a value pasted without an input event still
	// ends up formatted. Owned by the page registry, released on Close.
	t.pageReg.Track(doc.Root(), dom.EventBlur, func(e *dom.Event) {
		if e.Target != nil && e.Target.Attr("inputmode") == "decimal" {
			dom.Dispatch(e.Target, &dom.Event{Kind: dom.EventInput})
		}
	})

	return t, nil
}

// Load fetches rows through the data source and renders the table.
func (t *Table) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.source == nil {
		err := errors.New("basetable: no data source configured")
		t.logger.Error("load misconfigured", "error", err)
		t.alert(err)
		return err
	}

	raw, err := t.source(ctx)
	if err != nil {
		err = fmt.Errorf("basetable: load: %w", err)
		t.alert(err)
		return err
	}
	rows, err := envelope.Records(raw)
	if err != nil {
		err = fmt.Errorf("basetable: load: %w", err)
		t.alert(err)
		return err
	}
	t.rows = rows
	t.renderLocked()
	return nil
}

// Rows returns a snapshot of the full row set in its current order.
func (t *Table) Rows() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]map[string]any(nil), t.rows...)
}

// Node returns the node the table renders into.
func (t *Table) Node() *dom.Node { return t.container }

// Sort orders rows by a column. Sorting is stable, so successive sorts
// refine rather than shuffle.
func (t *Table) Sort(column string, asc bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.sortCol = column
	t.sortAsc = asc
	t.renderLocked()
}

// Filter keeps only rows with a cell containing the query, case-insensitive.
// An empty query restores the full set.
func (t *Table) Filter(query string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.filter = query
	t.offset = 0
	t.renderLocked()
}

// Page limits the rendered window. A limit of zero disables paging.
func (t *Table) Page(offset, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if offset < 0 {
		offset = 0
	}
	t.offset = offset
	t.limit = limit
	t.renderLocked()
}

// view applies filter, sort and paging to the row set.
func (t *Table) viewLocked() []map[string]any {
	out := make([]map[string]any, 0, len(t.rows))
	query := strings.ToLower(strings.TrimSpace(t.filter))
	for _, row := range t.rows {
		if query == "" || t.rowMatches(row, query) {
			out = append(out, row)
		}
	}

	if t.sortCol != "" {
		col := t.sortCol
		asc := t.sortAsc
		sort.SliceStable(out, func(i, j int) bool {
			less := compareValues(out[i][col], out[j][col])
			if asc {
				return less < 0
			}
			return less > 0
		})
	}

	if t.offset >= len(out) {
		return nil
	}
	out = out[t.offset:]
	if t.limit > 0 && t.limit < len(out) {
		out = out[:t.limit]
	}
	return out
}

func (t *Table) rowMatches(row map[string]any, query string) bool {
	for _, col := range t.columns {
		if strings.Contains(strings.ToLower(schema.Stringify(row[col.Name])), query) {
			return true
		}
	}
	return false
}

// compareValues orders two cell values: numbers numerically, everything
// else by string form.
func compareValues(a, b any) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(schema.Stringify(a), schema.Stringify(b))
}

// renderLocked rebuilds the table subtree from the current view.
func (t *Table) renderLocked() {
	if t.tableNode != nil {
		t.tableNode.Remove()
	}
	t.tableNode = t.container.Append(dom.NewNode(dom.KindTable))

	header := t.tableNode.Append(dom.NewNode(dom.KindRow))
	header.AddClass("header")
	for _, col := range t.columns {
		cell := header.Append(dom.NewNode(dom.KindCell))
		cell.Text = col.DisplayLabel()
		cell.SetAttr("data-column", col.Name)
	}

	for _, row := range t.viewLocked() {
		rowNode := t.tableNode.Append(dom.NewNode(dom.KindRow))
		rowNode.SetAttr("data-id", schema.Stringify(row[t.idField]))
		for _, col := range t.columns {
			cell := rowNode.Append(dom.NewNode(dom.KindCell))
			t.cells.Render(col.Type, cell, row[col.Name], col, row)
		}
	}
}

// OpenAdd opens an empty form dialog. The saved row is inserted at the head
// of the row set.
func (t *Table) OpenAdd(ctx context.Context) (*dialog.Session, error) {
	return t.openDialog(ctx, "Add", nil)
}

// OpenEdit opens the form dialog for the row with the given identifier. The
// saved result is shallow-merged over the existing row in place.
func (t *Table) OpenEdit(ctx context.Context, id any) (*dialog.Session, error) {
	t.mu.Lock()
	row := t.findLocked(id)
	t.mu.Unlock()
	if row == nil {
		return nil, fmt.Errorf("basetable: no row with %s=%v", t.idField, id)
	}
	item := make(map[string]any, len(row))
	for k, v := range row {
		item[k] = v
	}
	return t.openDialog(ctx, "Edit", item)
}

func (t *Table) openDialog(ctx context.Context, title string, item map[string]any) (*dialog.Session, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.session != nil && t.session.State() != dialog.StateClosed {
		t.mu.Unlock()
		return nil, errors.New("basetable: a dialog is already open")
	}
	t.mu.Unlock()

	session, err := dialog.Open(t.doc, t.factory,
		dialog.WithTitle(title),
		dialog.WithFields(t.formFields),
		dialog.WithItem(item),
		dialog.WithIDField(t.idField),
		dialog.WithCreate(dialog.SaveFunc(t.create)),
		dialog.WithUpdate(dialog.SaveFunc(t.update)),
		dialog.WithLogger(t.logger),
		dialog.WithAlert(t.alert),
	)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.session = session
	t.mu.Unlock()

	go func() {
		row, err := session.Wait(context.Background())
		if err != nil || row == nil {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		t.mergeLocked(row)
		t.renderLocked()
	}()
	return session, nil
}

// mergeLocked folds a saved row into the set: existing rows are updated
// field-by-field in place, new rows go to the head.
func (t *Table) mergeLocked(row map[string]any) {
	if existing := t.findLocked(row[t.idField]); existing != nil {
		for k, v := range row {
			existing[k] = v
		}
		return
	}
	t.rows = append([]map[string]any{row}, t.rows...)
}

func (t *Table) findLocked(id any) map[string]any {
	key := schema.Stringify(id)
	if key == "" {
		return nil
	}
	for _, row := range t.rows {
		if schema.Stringify(row[t.idField]) == key {
			return row
		}
	}
	return nil
}

// Delete runs the host delete callback and removes the row on a positive
// acknowledgement.
func (t *Table) Delete(ctx context.Context, id any) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	remove := t.remove
	t.mu.Unlock()

	if remove == nil {
		err := errors.New("basetable: no delete callback configured")
		t.logger.Error("delete misconfigured", "error", err)
		t.alert(err)
		return err
	}

	res, err := remove(ctx, id)
	if err != nil {
		err = fmt.Errorf("basetable: delete: %w", err)
		t.alert(err)
		return err
	}
	if !envelope.Ack(res) {
		err = fmt.Errorf("basetable: delete of %s=%v not acknowledged", t.idField, id)
		t.alert(err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := schema.Stringify(id)
	for i, row := range t.rows {
		if schema.Stringify(row[t.idField]) == key {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			break
		}
	}
	t.renderLocked()
	return nil
}

// InvalidateReferences drops every cached reference list; the next select
// build refetches.
func (t *Table) InvalidateReferences() {
	t.refs.Clear()
}

// References exposes the shared reference cache, for hosts that preload.
func (t *Table) References() *refcache.Cache { return t.refs }

// Close cancels any open dialog, releases the page registry and unmounts
// the table. Idempotent.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	session := t.session
	t.mu.Unlock()

	if session != nil {
		session.Cancel()
	}
	t.pageReg.ReleaseAll()
	t.refs.Clear()
	t.mu.Lock()
	if t.tableNode != nil {
		t.tableNode.Remove()
		t.tableNode = nil
	}
	t.mu.Unlock()
}
