package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldResource    = "resource"
	FieldResourceID  = "resource_id"
	FieldPage        = "page"
	FieldLastPage    = "last_page"
	FieldRows        = "rows"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldStatus      = "status"
	FieldEmployeeID  = "employee_id"
	FieldAction      = "action"
	FieldFilename    = "filename"
	FieldLocation    = "location"
	FieldSink        = "sink"
	FieldScope       = "scope"
	FieldCacheKey    = "cache_key"
	FieldContentType = "content_type"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentAPI        = "api"
	ComponentSession    = "session"
	ComponentListing    = "listing"
	ComponentDividend   = "dividend"
	ComponentExport     = "export"
	ComponentProof      = "proof"
	ComponentConfirm    = "confirm"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentModeration = "moderation"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpApprove  = "approve"
	OpReject   = "reject"
	OpExport   = "export"
	OpEnrich   = "enrich"
	OpPreview  = "preview"
	OpLogin    = "login"
	OpLogout   = "logout"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeServer        = "server_error"
	ErrorTypeNotFound      = "not_found_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithResource adds the resource name and, when set, its id
func (f LogFields) WithResource(resource, id string) LogFields {
	f[FieldResource] = resource
	if id != "" {
		f[FieldResourceID] = id
	}
	return f
}

// WithAPIRequest adds outbound request fields
func (f LogFields) WithAPIRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	return f
}

// WithAPIResponse adds outbound response fields
func (f LogFields) WithAPIResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
