package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/layout"
)

// configBody decodes a JSON config over the defaults.
type configBody struct {
	layout.Config
}

func (c *configBody) UnmarshalJSON(data []byte) error {
	cfg, err := layout.ParseConfigJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// decodeConfig reads an optional config body. An empty body yields the
// defaults.
func decodeConfig(w http.ResponseWriter, r *http.Request) (layout.Config, error) {
	if r.ContentLength == 0 {
		return layout.DefaultConfig(), nil
	}
	return layout.ParseConfigJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// decodeBody decodes a JSON request body into v. Config errors keep their
// code; anything else is an input error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.GetCode(err) != "" {
			return err
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
