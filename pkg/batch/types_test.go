package batch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryUnmarshal(t *testing.T) {
	t.Run("canonical field names", func(t *testing.T) {
		var q Query
		err := json.Unmarshal([]byte(`{"id":"q-1","subject_identifier":"12345678901","birth_date":"01/02/1980","document_expiry_date":"03/04/2030"}`), &q)
		require.NoError(t, err)

		assert.Equal(t, "q-1", q.Identifier)
		assert.Equal(t, "12345678901", q.SubjectIdentifier)
		assert.Equal(t, "01/02/1980", q.BirthDate)
		assert.Equal(t, "03/04/2030", q.DocumentExpiryDate)
	})

	t.Run("legacy field names", func(t *testing.T) {
		var q Query
		err := json.Unmarshal([]byte(`{"cpf":"12345678901","birthday":"01/02/1980","cnh_due_at":"03/04/2030"}`), &q)
		require.NoError(t, err)

		assert.Equal(t, "12345678901", q.SubjectIdentifier)
		assert.Equal(t, "01/02/1980", q.BirthDate)
		assert.Equal(t, "03/04/2030", q.DocumentExpiryDate)
	})

	t.Run("canonical wins over legacy", func(t *testing.T) {
		var q Query
		err := json.Unmarshal([]byte(`{"subject_identifier":"111","cpf":"222"}`), &q)
		require.NoError(t, err)
		assert.Equal(t, "111", q.SubjectIdentifier)
	})

	t.Run("invalid json", func(t *testing.T) {
		var q Query
		assert.Error(t, json.Unmarshal([]byte(`{`), &q))
	})
}

func TestQueryValidate(t *testing.T) {
	valid := Query{SubjectIdentifier: "1", BirthDate: "01/01/1990", DocumentExpiryDate: "01/01/2030"}
	assert.NoError(t, valid.Validate())

	missing := Query{SubjectIdentifier: "1", DocumentExpiryDate: "  "}
	err := missing.Validate()
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "missing required fields")
	assert.Contains(t, err.Error(), "birth_date")
	assert.Contains(t, err.Error(), "document_expiry_date")
	assert.False(t, IsRetryable(err))
}

func TestResultJSONShape(t *testing.T) {
	res := failedResult(Query{Identifier: "q-1"}, &Error{Kind: KindRemoteRejection, Message: "CPF inválido"})

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	inner := decoded["result"]
	assert.Equal(t, false, inner["success"])
	assert.Equal(t, "CPF inválido", inner["error"])
	assert.Contains(t, inner, "expired_at")
	assert.Nil(t, inner["expired_at"])
	assert.Contains(t, inner, "collection_date")
	assert.Contains(t, inner, "captured_image_base64")
	assert.Equal(t, "q-1", decoded["payload"]["id"])
	assert.Equal(t, "error", res.Status())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{name: "rejection", err: &Error{Kind: KindRemoteRejection, Message: "not found"}, kind: KindRemoteRejection, retryable: true},
		{name: "transient", err: transient("navigate", errors.New("boom")), kind: KindTransient, retryable: true},
		{name: "foreign error", err: errors.New("boom"), kind: KindTransient, retryable: true},
		{name: "validation", err: &Error{Kind: KindValidation}, kind: KindValidation, retryable: false},
		{name: "engine", err: &Error{Kind: KindEngine, Err: errors.New("no chrome")}, kind: KindEngine, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := transient("navigate", cause)

	assert.Equal(t, "navigate: deadline exceeded", err.Error())
	assert.ErrorIs(t, err, cause)
}
