package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefixEscapes(t *testing.T) {
	assert.Equal(t, `userPets\_%`, likePrefix("userPets_"))
	assert.Equal(t, `a\%b\\c%`, likePrefix(`a%b\c`))
	assert.Equal(t, `%`, likePrefix(""))
}

func TestNilDBErrors(t *testing.T) {
	s := &Store{}
	_, _, err := s.Get("k")
	assert.Error(t, err)
	assert.Error(t, s.Set("k", "v"))
	assert.Error(t, s.Delete("k"))
	_, err = s.Keys("k")
	assert.Error(t, err)
}
