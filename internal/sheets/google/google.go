package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	ports "koperasi/internal/sheets"

	applog "koperasi/internal/log"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// maxTitleLen is the longest tab title the Sheets API accepts.
const maxTitleLen = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger
}

// Ensure interface conformance
var _ ports.Writer = (*Client)(nil)

// Credentials selects the service account used to reach the Sheets API.
// JSON wins over File; with neither, GOOGLE_APPLICATION_CREDENTIALS is read.
type Credentials struct {
	JSON string
	File string
}

// New creates a Sheets client writing into spreadsheetID.
func New(ctx context.Context, spreadsheetID string, creds Credentials, logger *applog.Logger) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	credentialsJSON, err := loadCredentials(ctx, creds, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// NewWithOptions builds a client from explicit API options, e.g. an
// endpoint and HTTP client for tests.
func NewWithOptions(ctx context.Context, spreadsheetID string, logger *applog.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger.WithComponent(applog.ComponentSheets)}, nil
}

func loadCredentials(ctx context.Context, creds Credentials, logger *applog.Logger) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(creds.JSON)
	serviceAccountFile := strings.TrimSpace(creds.File)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading service account credentials", applog.FieldLocation, serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) Name() string { return "sheets" }

// Write replaces the content of the tab named after the document, creating
// the tab when it does not exist. It returns the updated range.
func (c *Client) Write(ctx context.Context, doc ports.Document) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab := tabTitle(doc)

	created, err := c.ensureTab(ctx, tab)
	if err != nil {
		return "", err
	}
	if !created {
		if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quote(tab), &gsheet.ClearValuesRequest{}).
			Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("clear %s: %w", tab, err)
		}
	}

	values := make([][]any, 0, len(doc.Rows)+1)
	values = append(values, toValues(doc.Header))
	for _, row := range doc.Rows {
		values = append(values, toValues(row))
	}

	rng := quote(tab) + "!A1"
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	location := rng
	if resp != nil && resp.UpdatedRange != "" {
		location = resp.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Sheet tab written",
		applog.FieldLocation, location,
		applog.FieldRows, len(doc.Rows),
		"created", created)
	return location, nil
}

// ensureTab reports whether the tab had to be created.
func (c *Client) ensureTab(ctx context.Context, tab string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return false, nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("add tab %s: %w", tab, err)
	}
	return true, nil
}

func tabTitle(doc ports.Document) string {
	t := strings.TrimSpace(doc.Name)
	if t == "" {
		t = doc.Title
	}
	if r := []rune(t); len(r) > maxTitleLen {
		t = string(r[:maxTitleLen])
	}
	return t
}

// quote renders a tab title for A1 notation.
func quote(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func toValues(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
