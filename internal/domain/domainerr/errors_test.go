package domainerr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsAs(t *testing.T) {
	err := errors.Wrap(Invalid("quantity", "must be greater than 0"), "record return")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)
	assert.Equal(t, "record return: validation: quantity: must be greater than 0", err.Error())

	err = errors.Wrap(NotFound("rental", "r-1"), "load")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "rental", nf.Kind)
	assert.Equal(t, "load: rental r-1 not found", err.Error())
}

func TestValidationError_NoField(t *testing.T) {
	assert.Equal(t, "validation: items required", (&ValidationError{Reason: "items required"}).Error())
}
