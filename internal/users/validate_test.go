package users

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCreate(t *testing.T) {
	in := NormalizeCreate(CreateInput{
		FullName: "  Ada Lovelace\t",
		Username: " Ada_L ",
		Email:    " ADA@Example.Com ",
		Password: " keep spaces ",
	})
	assert.Equal(t, "Ada Lovelace", in.FullName)
	assert.Equal(t, "ada_l", in.Username)
	assert.Equal(t, "ada@example.com", in.Email)
	assert.Equal(t, " keep spaces ", in.Password)
}

func TestNormalizeUpdateLeavesAbsentFields(t *testing.T) {
	in := NormalizeUpdate(UpdateInput{Email: strPtr("X@Y.COM")})
	assert.Nil(t, in.FullName)
	assert.Nil(t, in.Password)
	require.NotNil(t, in.Email)
	assert.Equal(t, "x@y.com", *in.Email)
}

func TestValidatorCreate(t *testing.T) {
	v := NewValidator()
	cases := map[string]struct {
		mutate func(*CreateInput)
		field  string
	}{
		"short name":         {func(in *CreateInput) { in.FullName = "A" }, FieldFullName},
		"long name":          {func(in *CreateInput) { in.FullName = strings.Repeat("a", 51) }, FieldFullName},
		"short username":     {func(in *CreateInput) { in.Username = "ab" }, FieldUsername},
		"long username":      {func(in *CreateInput) { in.Username = strings.Repeat("a", 21) }, FieldUsername},
		"username charset":   {func(in *CreateInput) { in.Username = "ada!" }, FieldUsername},
		"bad email":          {func(in *CreateInput) { in.Email = "not-an-email" }, FieldEmail},
		"long email":         {func(in *CreateInput) { in.Email = strings.Repeat("a", 95) + "@x.com" }, FieldEmail},
		"short password":     {func(in *CreateInput) { in.Password = "short" }, FieldPassword},
		"long password":      {func(in *CreateInput) { in.Password = strings.Repeat("p", 65) }, FieldPassword},
		"multibyte password": {func(in *CreateInput) { in.Password = strings.Repeat("é", 40) }, FieldPassword},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := ada()
			tc.mutate(&in)
			err := v.Create(in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tc.field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.NoError(t, v.Create(ada()))
	boundary := ada()
	boundary.FullName = strings.Repeat("n", 50)
	boundary.Username = strings.Repeat("u", 20)
	boundary.Password = strings.Repeat("p", 64)
	assert.NoError(t, v.Create(boundary))
}

func TestValidatorReportsEveryField(t *testing.T) {
	err := NewValidator().Create(CreateInput{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	assert.Equal(t, "is required", verr.Fields[FieldUsername])
}

func TestValidatorUpdate(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Update(UpdateInput{}))
	assert.NoError(t, v.Update(UpdateInput{FullName: strPtr("Ada King")}))
	assert.ErrorIs(t, v.Update(UpdateInput{Email: strPtr("nope")}), ErrValidation)
	assert.ErrorIs(t, v.Update(UpdateInput{Password: strPtr("short")}), ErrValidation)
	assert.ErrorIs(t, v.Update(UpdateInput{FullName: strPtr("")}), ErrValidation)
}

func TestValidatorUsername(t *testing.T) {
	v := NewValidator()
	assert.True(t, v.Username("ada"))
	assert.True(t, v.Username("a-b_c9"))
	assert.False(t, v.Username("ab"))
	assert.False(t, v.Username("has space"))
	assert.False(t, v.Username(""))
}
