package billing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestQuoteLinkError(t *testing.T) {
	err := QuoteLinkError(fmt.Errorf("create invoice: %w", gorm.ErrDuplicatedKey))
	assert.Same(t, ErrQuoteInvoiced, err)

	other := errors.New("connection reset")
	assert.Same(t, other, QuoteLinkError(other))
	assert.Nil(t, QuoteLinkError(nil))
}
