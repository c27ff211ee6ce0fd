package domain

import (
	"testing"

	"callcenter-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestNormalize(t *testing.T) {
	p, err := PageRequest{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p, err = PageRequest{Page: 3, PageSize: 100}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 200, p.Offset())

	for _, bad := range []PageRequest{{Page: -1}, {PageSize: -5}, {PageSize: 101}} {
		_, err := bad.Normalize()
		assert.ErrorIs(t, err, xerrors.ErrValidation, "%+v", bad)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		total     int64
		page      int
		size      int
		wantPages int
		wantMore  bool
	}{
		{0, 1, 10, 0, false},
		{10, 1, 10, 1, false},
		{11, 1, 10, 2, true},
		{11, 2, 10, 2, false},
		{95, 3, 20, 5, true},
	}
	for _, tt := range tests {
		got := NewPagination(tt.total, PageRequest{Page: tt.page, PageSize: tt.size})
		assert.Equal(t, tt.wantPages, got.TotalPages, "total=%d size=%d", tt.total, tt.size)
		assert.Equal(t, tt.wantMore, got.HasMore, "total=%d page=%d", tt.total, tt.page)
	}
}

func TestParseAssignmentFilter(t *testing.T) {
	f, ok := ParseAssignmentFilter("")
	assert.True(t, ok)
	assert.Equal(t, FilterAll, f)

	f, ok = ParseAssignmentFilter("byAccount")
	assert.True(t, ok)
	assert.Equal(t, FilterByAccount, f)

	_, ok = ParseAssignmentFilter("mine")
	assert.False(t, ok)
}

func TestNewContactNormalize(t *testing.T) {
	valid := NewContact{
		SerialNo: 7, PMNo: " PM-7 ", EnrollmentNo: "EN-7", Name: " Jane Doe ",
		Phones: []string{" +15550001 ", "", "+15550002"},
	}
	n, err := valid.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", n.Name)
	assert.Equal(t, "PM-7", n.PMNo)
	assert.Equal(t, []string{"+15550001", "+15550002"}, n.Phones)

	tooMany := valid
	tooMany.Phones = []string{"1", "2", "3", "4", "5"}
	dup := valid
	dup.Phones = []string{"1", " 1"}
	noSerial := valid
	noSerial.SerialNo = 0
	noName := valid
	noName.Name = "  "

	for name, in := range map[string]NewContact{"too many phones": tooMany, "duplicate phone": dup, "no serial": noSerial, "no name": noName} {
		_, err := in.Normalize()
		var ve *xerrors.ValidationError
		assert.ErrorAs(t, err, &ve, name)
	}
}

func TestPendingNeverNegative(t *testing.T) {
	assert.EqualValues(t, 3, AccountStats{ActiveAssignedContacts: 5, UniqueContactsCalled: 2}.Pending())
	assert.Zero(t, AccountStats{ActiveAssignedContacts: 1, UniqueContactsCalled: 4}.Pending())
}

func TestPrincipalAccess(t *testing.T) {
	admin := Principal{AccountID: "a", Role: RoleAdmin}
	user := Principal{AccountID: "u", Role: RoleUser}
	assert.True(t, admin.CanAccess("u"))
	assert.True(t, user.CanAccess("u"))
	assert.False(t, user.CanAccess("a"))
	assert.False(t, user.IsAdmin())
}
