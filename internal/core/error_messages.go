package core

// error_messages.go maps row error kinds and run failures to user-facing
// messages with support codes.
//
// # Row Errors
//
// Every ErrorKind has a template, a default severity and a code:
//
//	SKU001-SKU004  SKU column problems (empty, orphan, type, delete)
//	TYP001-TYP003  product type and attribute set problems
//	STO001         unknown store view
//	URL001         duplicate URL key
//	ATT001-ATT005  attribute value problems
//	OPT001         custom options
//	PRC001         tier prices
//	CAT001         category creation
//	MED001         image upload
//	LIM001         entity limit
//	TAX001         tax class
//
// # Run Errors
//
// MapError matches technical errors case-insensitively by substring; the
// first match wins:
//
//	DB001-DB007    database errors
//	CFG001-CFG002  metadata configuration (unknown attribute, unknown website)
//	FILE001-FILE007 file errors
//	IMP001-IMP007  run management (cancelled, busy, not found, timeouts)
//	ERR000         fallback; check application logs

import (
	"fmt"
	"strings"
)

// ErrorKind identifies a row-level problem.
type ErrorKind string

const (
	KindInvalidValue          ErrorKind = "invalidValue"
	KindSkuIsEmpty            ErrorKind = "skuIsEmpty"
	KindRowIsOrphan           ErrorKind = "rowIsOrphan"
	KindTypeUnsupported       ErrorKind = "productTypeUnsupported"
	KindSkuNotFoundToDelete   ErrorKind = "skuNotFoundToDelete"
	KindInvalidType           ErrorKind = "invalidType"
	KindInvalidAttrSet        ErrorKind = "invalidAttrSet"
	KindInvalidTypeData       ErrorKind = "invalidTypeData"
	KindInvalidStore          ErrorKind = "invalidStore"
	KindDuplicateURLKey       ErrorKind = "duplicatedUrlKey"
	KindValueIsRequired       ErrorKind = "isRequired"
	KindInvalidAttributeType  ErrorKind = "invalidAttributeType"
	KindInvalidAttributeValue ErrorKind = "invalidAttributeValue"
	KindExceededMaxLength     ErrorKind = "exceededMaxLength"
	KindAbsentOption          ErrorKind = "absentAttributeOption"
	KindInvalidCustomOptions  ErrorKind = "invalidCustomOptions"
	KindInvalidTierPrice      ErrorKind = "invalidTierPrice"
	KindCategoryNotCreated    ErrorKind = "categoryNotCreated"
	KindMediaNotAccessible    ErrorKind = "mediaUrlNotAccessible"
	KindEntityLimitReached    ErrorKind = "entityLimitReached"
	KindTaxClassNotResolved   ErrorKind = "taxClassNotResolved"
)

// rowErrorTemplate describes how a kind is reported.
type rowErrorTemplate struct {
	severity Severity
	format   string
	msg      UserMessage
}

var rowErrorCatalog = map[ErrorKind]rowErrorTemplate{
	KindSkuIsEmpty: {
		format: "SKU is empty",
		msg:    UserMessage{Code: "SKU001", Action: "Fill the sku column of every default row"},
	},
	KindRowIsOrphan: {
		format: "Orphan rows that will be skipped due default row errors",
		msg:    UserMessage{Code: "SKU002", Action: "Fix the default row of this product"},
	},
	KindTypeUnsupported: {
		format: "Product type is unsupported",
		msg:    UserMessage{Code: "SKU003", Action: "The stored product type cannot be imported"},
	},
	KindSkuNotFoundToDelete: {
		format: "Product with specified SKU not found",
		msg:    UserMessage{Code: "SKU004", Action: "Remove the row or check the SKU spelling"},
	},
	KindInvalidType: {
		format: "Product type is invalid or not supported",
		msg:    UserMessage{Code: "TYP001", Action: "Use one of the registered product types"},
	},
	KindInvalidAttrSet: {
		format: "Invalid value for Attribute Set column (set doesn't exist?)",
		msg:    UserMessage{Code: "TYP002", Action: "Use an existing attribute set code"},
	},
	KindInvalidTypeData: {
		format: "Invalid value in %s column: %s",
		msg:    UserMessage{Code: "TYP003", Action: "Check the type specific column format"},
	},
	KindInvalidStore: {
		format: "Invalid value in Store column (store doesn't exist?)",
		msg:    UserMessage{Code: "STO001", Action: "Use an existing store view code"},
	},
	KindDuplicateURLKey: {
		format: "Url key: '%s' was already generated for an item with the SKU: '%s'. You need to specify the unique URL key manually",
		msg:    UserMessage{Code: "URL001", Action: "Set a unique url_key for this product"},
	},
	KindValueIsRequired: {
		format: "Please make sure attribute \"%s\" is not empty.",
		msg:    UserMessage{Code: "ATT001", Action: "Fill all required attributes for new products"},
	},
	KindInvalidAttributeType: {
		format: "Value for '%s' attribute contains incorrect value",
		msg:    UserMessage{Code: "ATT002", Action: "Check the value type of this attribute"},
	},
	KindAbsentOption: {
		format: "Value for '%s' attribute contains incorrect value, see acceptable values on settings specified for Admin",
		msg:    UserMessage{Code: "ATT003", Action: "Use one of the attribute's option labels"},
	},
	KindExceededMaxLength: {
		format: "Attribute %s exceeded max length",
		msg:    UserMessage{Code: "ATT004", Action: "Shorten the value"},
	},
	KindInvalidValue: {
		format: "Value for '%s' attribute contains incorrect value",
		msg:    UserMessage{Code: "ATT005", Action: "Check the column format"},
	},
	KindInvalidAttributeValue: {
		severity: SeverityNotCritical,
		format:   "Value for '%s' attribute could not be converted: %s",
		msg:      UserMessage{Code: "ATT006", Action: "Check the attribute value"},
	},
	KindInvalidCustomOptions: {
		format: "Invalid custom options: %s",
		msg:    UserMessage{Code: "OPT001", Action: "Use name=...,type=...,required=... entries separated by |"},
	},
	KindInvalidTierPrice: {
		format: "Tier prices data is incorrect: %s",
		msg:    UserMessage{Code: "PRC001", Action: "Provide a JSON list of {website, customer_group, qty, price}"},
	},
	KindCategoryNotCreated: {
		severity: SeverityNotCritical,
		format:   "Category \"%s\" has not been created. %s",
		msg:      UserMessage{Code: "CAT001", Action: "Check the category path"},
	},
	KindMediaNotAccessible: {
		severity: SeverityNotCritical,
		format:   "Imported resource (image) could not be downloaded from external resource due to timeout or access permissions",
		msg:      UserMessage{Code: "MED001", Action: "Check the image reference"},
	},
	KindEntityLimitReached: {
		severity: SeverityNotCritical,
		format:   "Product limit reached, product with SKU '%s' was not created",
		msg:      UserMessage{Code: "LIM001", Action: "Raise the entity limit or split the file"},
	},
	KindTaxClassNotResolved: {
		severity: SeverityNotCritical,
		format:   "Tax class \"%s\" could not be resolved",
		msg:      UserMessage{Code: "TAX001", Action: "Check the tax class name"},
	},
}

// RowErrorMessage returns the user-facing message of a kind.
func RowErrorMessage(kind ErrorKind) UserMessage {
	tmpl, ok := rowErrorCatalog[kind]
	if !ok {
		return defaultMessage
	}
	msg := tmpl.msg
	msg.Message = strings.ReplaceAll(tmpl.format, "%s", "...")
	return msg
}

// formatRowError renders the message of a kind with its arguments.
func formatRowError(kind ErrorKind, args ...any) (string, Severity) {
	tmpl, ok := rowErrorCatalog[kind]
	if !ok {
		return string(kind), SeverityCritical
	}
	n := strings.Count(tmpl.format, "%s")
	if n == 0 {
		return tmpl.format, tmpl.severity
	}
	padded := make([]any, n)
	for i := range padded {
		if i < len(args) {
			padded[i] = args[i]
		} else {
			padded[i] = ""
		}
	}
	return fmt.Sprintf(tmpl.format, padded...), tmpl.severity
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. More specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB007)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check the file for SKUs that differ only by case or whitespace",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure websites, stores and attribute sets exist before importing",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Configuration Errors (CFG001-CFG002)
	// =========================================================================
	{
		pattern: ErrUnknownAttribute.Error(),
		msg: UserMessage{
			Message: "The file references an attribute that is not configured",
			Action:  "Create the attribute or remove the column",
			Code:    "CFG001",
		},
	},
	{
		pattern: ErrUnknownWebsite.Error(),
		msg: UserMessage{
			Message: "The file references a website that does not exist",
			Action:  "Check the product_websites column",
			Code:    "CFG002",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or XLSX file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "no sku column",
		msg: UserMessage{
			Message: "The file has no sku column",
			Action:  "Add a sku column to the header row",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Run Errors (IMP001-IMP007)
	// =========================================================================
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Too many imports in progress",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Import timed out",
			Action:  "Split the file or raise IMPORT_TIMEOUT",
			Code:    "IMP005",
		},
	},
	{
		pattern: "import terminated",
		msg: UserMessage{
			Message: "Import stopped after too many invalid rows",
			Action:  "Fix the reported rows or raise IMPORT_ALLOWED_ERROR_COUNT",
			Code:    "IMP006",
		},
	},
	{
		pattern: "invalid import request",
		msg: UserMessage{
			Message: "The import options are invalid",
			Action:  "Check behavior, validation_strategy and allowed_error_count",
			Code:    "IMP007",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when none matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
