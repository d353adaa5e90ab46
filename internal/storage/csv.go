package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// Table 헤더가 있는 CSV 테이블
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a headed CSV file. Ragged rows are rejected.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ioError("read", path, errors.New("empty file, missing header"))
	}
	if err != nil {
		return nil, ioError("read", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := &Table{Header: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ioError("read", path, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// WriteTable writes the table atomically
func WriteTable(path string, t *Table) error {
	err := WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return ioError("write", path, err)
	}
	return nil
}

// Column 컬럼 인덱스 (없으면 -1)
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// RequireColumns returns the indexes of the named columns or an error
// listing every missing one.
func (t *Table) RequireColumns(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, n := range names {
		idx[i] = t.Column(n)
		if idx[i] < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %v (have %v)", missing, t.Header)
	}
	return idx, nil
}

// ColumnsWithPrefix 접두사로 시작하는 컬럼 이름 (헤더 순서)
func (t *Table) ColumnsWithPrefix(prefix string) []string {
	var cols []string
	for _, h := range t.Header {
		if strings.HasPrefix(h, prefix) {
			cols = append(cols, h)
		}
	}
	return cols
}

// Cell 범위를 벗어나면 빈 문자열
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// =============================================================================
// Cell parsing
// =============================================================================

var dateLayouts = []string{
	contracts.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// ParseDate accepts the artifact date layout and a few common variants;
// the time of day is dropped.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ParseFloat 숫자 셀 파싱
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable number %q", s)
	}
	return v, nil
}

// IsMissing 결측 표기 셀 (빈 칸, NA 계열)
func IsMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "N/A", "NaN", "nan", "null":
		return true
	}
	return false
}

// ParseOptionalFloat reads a numeric cell where missing markers mean NaN.
// Any other unparseable value is an error, never a silent NaN.
func ParseOptionalFloat(s string) (float64, error) {
	if IsMissing(s) {
		return math.NaN(), nil
	}
	return ParseFloat(s)
}

// FormatFloat 아티팩트 숫자 포맷 (최소 자릿수 round-trip)
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ioError(op, path string, err error) error {
	return contracts.NewError(contracts.KindArtifactIO, op+" "+path, err)
}
