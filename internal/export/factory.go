package export

import (
	"context"
	"fmt"

	"koperasi/internal/handle"
	applog "koperasi/internal/log"
	gsheet "koperasi/internal/sheets/google"
)

// Format selects the sink an export is written to.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatSheets Format = "sheets"
)

// String implements fmt.Stringer
func (f Format) String() string {
	return string(f)
}

// IsValid returns true if the format is known
func (f Format) IsValid() bool {
	switch f {
	case FormatCSV, FormatXLSX, FormatSheets:
		return true
	default:
		return false
	}
}

// Formats returns all valid formats
func Formats() []Format {
	return []Format{FormatCSV, FormatXLSX, FormatSheets}
}

// SinkConfig holds what the factory needs to build a sink.
type SinkConfig struct {
	Format Format
	Dir    string

	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// Validate validates the sink configuration
func (c SinkConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid export format: %s", c.Format)
	}
	switch c.Format {
	case FormatCSV, FormatXLSX:
		if c.Dir == "" {
			return fmt.Errorf("export directory is required for %s exports", c.Format)
		}
	case FormatSheets:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets exports")
		}
	}
	return nil
}

// Factory creates sinks from configuration.
type Factory struct {
	handles *handle.Registry
	logger  *applog.Logger
}

func NewFactory(handles *handle.Registry, logger *applog.Logger) *Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Factory{handles: handles, logger: logger.WithComponent(applog.ComponentExport)}
}

// CreateSink returns the sink for cfg.Format.
func (f *Factory) CreateSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Format {
	case FormatCSV:
		f.logger.Debug("Initialized CSV sink", applog.FieldLocation, cfg.Dir)
		return NewFileSink(cfg.Dir, f.handles), nil
	case FormatXLSX:
		f.logger.Debug("Initialized XLSX sink", applog.FieldLocation, cfg.Dir)
		return NewXLSXSink(cfg.Dir, f.handles), nil
	case FormatSheets:
		cli, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets sink")
		return cli, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", cfg.Format)
	}
}
