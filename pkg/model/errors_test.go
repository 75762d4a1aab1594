package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/weeknote/pkg/model"
)

func TestErrorKinds(t *testing.T) {
	err := goerr.Wrap(model.ErrMissingCredential, "gemini api key is not set")
	gt.True(t, errors.Is(err, model.ErrMissingCredential))
	gt.True(t, errors.Is(err, model.ErrConfiguration))
	gt.Equal(t, errors.Is(err, model.ErrValidation), false)

	err = goerr.Wrap(model.ErrStoreUnavailable, "firestore is not reachable")
	gt.True(t, errors.Is(err, model.ErrConfiguration))

	err = goerr.Wrap(model.ErrModelRequestFailed, "quota exceeded")
	gt.Equal(t, errors.Is(err, model.ErrConfiguration), false)
	gt.S(t, err.Error()).Contains("quota exceeded")
}
