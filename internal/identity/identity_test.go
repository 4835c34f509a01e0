package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/roster/internal/value"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"138-1234-5678", "13812345678"},
		{" 138 1234 5678 ", "13812345678"},
		{"(010) 8888-6666", "01088886666"},
		{"+86 138\t1234\n5678", "+8613812345678"},
		{"１３８１２３４５６７８", "13812345678"},
		{"", ""},
		{"   ", ""},
		{"未提及", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "zhang@example.com", NormalizeEmail("  Zhang@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("未提及"))
	assert.Equal(t, "", NormalizeEmail(""))
}

func TestComputeDedupKey(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		email string
		want  string
	}{
		{"phone wins", "138-1234-5678", "a@b.c", "phone:13812345678"},
		{"email fallback", "未提及", "A@B.C", "email:a@b.c"},
		{"neither", "", " ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDedupKey(tt.phone, tt.email)
			assert.Equal(t, StrategyPhoneThenEmail, got.Strategy)
			assert.Equal(t, tt.want, got.Key)
		})
	}
}

func TestComputeDedupKey_Deterministic(t *testing.T) {
	a := ComputeDedupKey("138 1234 5678", "")
	b := ComputeDedupKey("13812345678", "other@example.com")
	assert.Equal(t, a, b)
}

func TestExtractContact_TopLevelAliases(t *testing.T) {
	phone, email := ExtractContact(value.Map{
		"手机":    value.String("13900000000"),
		"email": value.String("x@y.z"),
	})
	assert.Equal(t, "13900000000", phone)
	assert.Equal(t, "x@y.z", email)
}

func TestExtractContact_AliasOrder(t *testing.T) {
	phone, _ := ExtractContact(value.Map{
		"电话":     value.String("未提及"),
		"联系电话":   value.String("  "),
		"mobile": value.String("137"),
		"tel":    value.String("136"),
	})
	assert.Equal(t, "136", phone)
}

func TestExtractContact_NestedContact(t *testing.T) {
	phone, email := ExtractContact(value.Map{
		"联系方式": value.Map{
			"电话": value.String("138-0000-0000"),
			"邮箱": value.String("nested@example.com"),
		},
	})
	assert.Equal(t, "138-0000-0000", phone)
	assert.Equal(t, "nested@example.com", email)
}

func TestExtractContact_TopLevelBeatsNested(t *testing.T) {
	_, email := ExtractContact(value.Map{
		"邮箱":   value.String("top@example.com"),
		"联系方式": value.Map{"邮箱": value.String("nested@example.com")},
	})
	assert.Equal(t, "top@example.com", email)
}

func TestExtractContact_NumericPhone(t *testing.T) {
	phone, _ := ExtractContact(value.Map{"phone": value.Number(13812345678)})
	assert.Equal(t, "13812345678", phone)
}

func TestExtractContact_Placeholders(t *testing.T) {
	for _, token := range []string{"未提及", "未知", "无", "None", "NULL", "n/a", "NA", "Not provided", "unknown"} {
		t.Run(token, func(t *testing.T) {
			phone, email := ExtractContact(value.Map{
				"电话": value.String(token),
				"邮箱": value.String(token),
			})
			assert.Empty(t, phone)
			assert.Empty(t, email)
		})
	}
}

func TestExtractContact_Nil(t *testing.T) {
	phone, email := ExtractContact(nil)
	assert.Empty(t, phone)
	assert.Empty(t, email)
}

func TestExtractName(t *testing.T) {
	assert.Equal(t, "张三", ExtractName(value.Map{"姓名": value.String(" 张三 ")}))
	assert.Equal(t, "Li", ExtractName(value.Map{"姓名": value.String("未提及"), "name": value.String("Li")}))
	assert.Equal(t, "", ExtractName(value.Map{"电话": value.String("1")}))
}

func TestExtractName_ShortNamesAreKept(t *testing.T) {
	for _, name := range []string{"Na", "None", "无", "Unknown"} {
		assert.Equal(t, name, ExtractName(value.Map{"姓名": value.String(name)}), name)
	}
	assert.Equal(t, "", ExtractName(value.Map{"姓名": value.String("  ")}))
	assert.Equal(t, "", ExtractName(value.Map{"姓名": value.Null{}}))
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(nil))
	assert.True(t, IsMissing(value.Null{}))
	assert.True(t, IsMissing(value.List{value.String("无")}))
	assert.True(t, IsMissing(value.Map{}))
	assert.False(t, IsMissing(value.Number(0)))
	assert.False(t, IsMissing(value.Bool(false)))
	assert.False(t, IsMissing(value.String("x")))
}

func TestPhoneKey(t *testing.T) {
	assert.Equal(t, "phone:13812345678", PhoneKey("138-1234-5678"))
	assert.Equal(t, "", PhoneKey("未提及"))
}

func TestPlaceholderName(t *testing.T) {
	assert.Equal(t, "member_ab12", PlaceholderName("ab12"))
}
