package basetable

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/CalistaF0X/basetable/pkg/cellrender"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/fields"
	"github.com/CalistaF0X/basetable/pkg/schema"
	"github.com/CalistaF0X/basetable/pkg/upload"
)

// DataFunc fetches the table's rows. Any envelope shape the backend speaks
// is accepted.
type DataFunc func(ctx context.Context) (any, error)

// SaveFunc persists one record and returns the stored version.
type SaveFunc func(ctx context.Context, payload map[string]any) (any, error)

// DeleteFunc removes one record by identifier.
type DeleteFunc func(ctx context.Context, id any) (any, error)

// Option configures a Table.
type Option func(*Table)

// WithContainer mounts the table into an existing node instead of a fresh
// child of the document root.
func WithContainer(node *dom.Node) Option {
	return func(t *Table) { t.container = node }
}

// WithColumns sets the list-view column schema.
func WithColumns(columns []schema.Field) Option {
	return func(t *Table) { t.columns = columns }
}

// WithFormFields sets the edit/add form schema. When unset the column
// schema doubles as the form schema.
func WithFormFields(defs []schema.Field) Option {
	return func(t *Table) { t.formFields = defs }
}

// WithDataSource sets the row fetch callback.
func WithDataSource(fn DataFunc) Option {
	return func(t *Table) { t.source = fn }
}

// WithCreate sets the add-form persistence callback.
func WithCreate(fn SaveFunc) Option {
	return func(t *Table) { t.create = fn }
}

// WithUpdate sets the edit-form persistence callback.
func WithUpdate(fn SaveFunc) Option {
	return func(t *Table) { t.update = fn }
}

// WithDelete sets the row removal callback.
func WithDelete(fn DeleteFunc) Option {
	return func(t *Table) { t.remove = fn }
}

// WithReference registers a named option source shared by every ref-driven
// select of this table.
func WithReference(name string, source any) Option {
	return func(t *Table) { t.references[name] = source }
}

// WithUploadEndpoint points image fields at the multipart upload endpoint.
func WithUploadEndpoint(endpoint string) Option {
	return func(t *Table) { t.uploads = upload.NewClient(endpoint, nil) }
}

// WithUploadTransport installs a custom upload transport. Overrides
// WithUploadEndpoint.
func WithUploadTransport(transport upload.Transport) Option {
	return func(t *Table) { t.uploads = transport }
}

// WithIDField names the identifier field. Default "id".
func WithIDField(name string) Option {
	return func(t *Table) {
		if name != "" {
			t.idField = name
		}
	}
}

// WithLocale sets the locale for price rendering and masking.
func WithLocale(tag language.Tag) Option {
	return func(t *Table) { t.locale = tag }
}

// WithLogger routes toolkit errors to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithAlert installs the user-facing error surface. The default logs at
// error level.
func WithAlert(fn func(error)) Option {
	return func(t *Table) { t.alert = fn }
}

// WithCellRenderer installs or replaces a cell renderer for a type key.
func WithCellRenderer(kind schema.Type, fn cellrender.Func) Option {
	return func(t *Table) { t.cellOverrides[kind] = fn }
}

// WithMaskFunc installs a host price-masking plugin, preferred over the
// built-in mask.
func WithMaskFunc(fn fields.MaskFunc) Option {
	return func(t *Table) { t.maskFunc = fn }
}

// WithBrowseFunc installs a host file picker invoked by image fields'
// browse buttons.
func WithBrowseFunc(fn fields.BrowseFunc) Option {
	return func(t *Table) { t.browseFunc = fn }
}

// WithFieldController installs or replaces a field controller constructor
// for a type key.
func WithFieldController(kind schema.Type, ctor fields.Constructor) Option {
	return func(t *Table) { t.fieldOverrides[kind] = ctor }
}
