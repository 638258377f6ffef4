package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = e.Fields[k]
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// Validate checks field constraints and cross-references: table names are
// unique, primary keys and foreign keys name existing columns, and foreign key
// targets have the form "table.column".
func (s *Schema) Validate() error {
	fields := make(map[string]string)

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := fieldPath(fe.Namespace())
			fields[field] = describe(field, fe)
		}
	}

	seen := make(map[string]int, len(s.Tables))
	for i, t := range s.Tables {
		prefix := fmt.Sprintf("tables[%d]", i)
		if t.Name != "" {
			if j, dup := seen[t.Name]; dup {
				fields[prefix+".name"] = fmt.Sprintf("%s.name duplicates tables[%d] (%q)", prefix, j, t.Name)
			} else {
				seen[t.Name] = i
			}
		}

		columns := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			columns[c.Name] = true
		}
		for j, pk := range t.PrimaryKeys {
			if !columns[pk] {
				key := fmt.Sprintf("%s.primary_keys[%d]", prefix, j)
				fields[key] = fmt.Sprintf("%s references unknown column %q", key, pk)
			}
		}
		for col, ref := range t.ForeignKeys {
			key := fmt.Sprintf("%s.foreign_keys[%s]", prefix, col)
			if !columns[col] {
				fields[key] = fmt.Sprintf("%s references unknown column %q", key, col)
				continue
			}
			if _, _, ok := SplitReference(ref); !ok {
				fields[key] = fmt.Sprintf("%s must have the form table.column, got %q", key, ref)
			}
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "invalid schema", Fields: fields}
}

// SplitReference splits "table.column". The table part may itself be
// schema-qualified; the column is everything after the last dot.
func SplitReference(ref string) (table, column string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s validation failed on '%s' tag", field, fe.Tag())
	}
}
