package contextutils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DescribeValidationError turns binding failures into a short field list such
// as "latitude: lte=90; user_id: required". Other errors keep their message.
func DescribeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, toSnake(fe.Field())+": "+rule)
	}
	return strings.Join(parts, "; ")
}

// toSnake maps Go field names onto the JSON keys the clients send
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
