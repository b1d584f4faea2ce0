package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  yaml  ", want: FormatYAML},
		{name: "invalid format", input: "ldif", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type schemeRow struct {
	Name       string `json:"name" yaml:"name"`
	Reversible bool   `json:"reversible" yaml:"reversible"`
}

type schemeList []schemeRow

func (l schemeList) Headers() []string { return []string{"Scheme", "Reversible"} }
func (l schemeList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rev := "no"
		if r.Reversible {
			rev = "yes"
		}
		rows = append(rows, []string{r.Name, rev})
	}
	return rows
}

func TestPrinterFormats(t *testing.T) {
	data := schemeList{{Name: "SSHA512"}, {Name: "CLEAR", Reversible: true}}

	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(data))
		out := buf.String()
		assert.Contains(t, out, "SCHEME")
		assert.Contains(t, out, "SSHA512")
		assert.Contains(t, out, "yes")
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatJSON, false).Print(data))
		var got []schemeRow
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, []schemeRow(data), got)
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(data))
		var got []schemeRow
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, []schemeRow(data), got)
	})

	t.Run("TableFallsBackToJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"entries": 3}))
		assert.JSONEq(t, `{"entries":3}`, buf.String())
	})
}

func TestPrinterStatusLines(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, false).Success("password matches")
	assert.Equal(t, "password matches\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, FormatTable, true).Error("password does not match")
	assert.Equal(t, "\033[31mpassword does not match\033[0m\n", buf.String())
}

func TestTableData(t *testing.T) {
	table := NewTableData("Server", "Available")
	assert.Empty(t, table.Rows())

	table.AddRow("ldap1:389", "yes")
	table.AddRow("ldap2:389", "no")
	require.Len(t, table.Rows(), 2)
	assert.Equal(t, []string{"ldap2:389", "no"}, table.Rows()[1])

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))
	assert.Contains(t, buf.String(), "SERVER")
	assert.Contains(t, buf.String(), "ldap1:389")
}

func TestPrintKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, [][2]string{{"Scheme", "PBKDF2-SHA256"}, {"Matches", "true"}}))
	assert.Contains(t, buf.String(), "PBKDF2-SHA256")
	assert.Contains(t, buf.String(), "Matches")
}
