package book

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("isbn_code", validateISBNCode)
	validate.RegisterValidation("price_scale", validatePriceScale)
}

var (
	isbn10Pattern = regexp.MustCompile(`^\d{9}[\dX]$`)
	isbn13Pattern = regexp.MustCompile(`^\d{13}$`)
	nonISBNChars  = regexp.MustCompile(`[^0-9X]`)
)

// Request is the client payload for create and update. Server-managed fields
// (id, version, timestamps) are deliberately absent.
type Request struct {
	Title         string  `json:"title" validate:"required,max=255"`
	Author        string  `json:"author" validate:"required,max=100"`
	ISBN          string  `json:"isbn" validate:"required,isbn_code"`
	Price         float64 `json:"price" validate:"required,gt=0,lt=10000,price_scale"`
	Category      string  `json:"category" validate:"omitempty,max=50"`
	Description   string  `json:"description" validate:"omitempty,max=1000"`
	StockQuantity *int    `json:"stock_quantity" validate:"required,gte=0,lte=10000"`
}

// Normalize trims the free-text fields and reduces the ISBN to uppercase
// digits/X. Must run before Validate so constraints see canonical values.
func (r *Request) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	r.Category = strings.TrimSpace(r.Category)
	r.Description = strings.TrimSpace(r.Description)
	r.ISBN = NormalizeISBN(r.ISBN)
}

// NormalizeISBN strips everything but digits and X and uppercases the result.
func NormalizeISBN(isbn string) string {
	return nonISBNChars.ReplaceAllString(strings.ToUpper(strings.TrimSpace(isbn)), "")
}

func validateISBNCode(fl validator.FieldLevel) bool {
	isbn := fl.Field().String()
	if len(isbn) == 10 {
		return isbn10Pattern.MatchString(isbn)
	}
	if len(isbn) == 13 {
		return isbn13Pattern.MatchString(isbn)
	}
	return false
}

// price must carry at most two fraction digits
func validatePriceScale(fl validator.FieldLevel) bool {
	cents := fl.Field().Float() * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// FieldError is one field-level constraint violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks every constraint and returns the full set of violations,
// or nil when the request is acceptable. A request with any violation is
// rejected as a whole; nothing is persisted.
func (r *Request) Validate() []FieldError {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var out []FieldError
	for _, fe := range err.(validator.ValidationErrors) {
		field := jsonFieldName(fe.Field())

		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "isbn_code":
			message = fmt.Sprintf("%s must be a valid ISBN (10 or 13 digits)", field)
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "lt":
			message = fmt.Sprintf("%s must be less than %s", field, fe.Param())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "lte":
			message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "price_scale":
			message = fmt.Sprintf("%s must have at most 2 decimal places", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}

		out = append(out, FieldError{Field: field, Message: message})
	}
	return out
}

func jsonFieldName(structField string) string {
	switch structField {
	case "StockQuantity":
		return "stock_quantity"
	case "ISBN":
		return "isbn"
	default:
		return strings.ToLower(structField)
	}
}

// apply copies the mutable fields onto an entity. Version and the server
// timestamps are left untouched.
func (r *Request) apply(b *Book) {
	b.Title = r.Title
	b.Author = r.Author
	b.ISBN = r.ISBN
	b.Price = r.Price
	b.Category = r.Category
	b.Description = r.Description
	if r.StockQuantity != nil {
		b.StockQuantity = *r.StockQuantity
	}
}
