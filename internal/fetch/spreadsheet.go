package fetch

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"dashsync/internal/domain"
)

// fetchSpreadsheet pulls a shared sheet as CSV via its export endpoint.
// Params: context and sheet reference URL.
// Returns: parsed table or transport/parse error.
func (f *Fetcher) fetchSpreadsheet(ctx context.Context, url string) (domain.Table, error) {
	body, err := f.get(ctx, exportURL(url))
	if err != nil {
		return domain.Table{}, err
	}
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return domain.Table{}, fetchErr(ErrParse, err)
	}
	table, err := domain.TableFromCSV(records)
	if err != nil {
		return domain.Table{}, fetchErr(ErrParse, err)
	}
	return table, nil
}

// exportURL derives the CSV export endpoint from a sheet reference.
// Params: full sheet URL or bare document id as pasted by the user.
// Returns: export URL built from the document id embedded in the reference.
func exportURL(url string) string {
	marker := "/d/"
	index := strings.Index(url, marker)
	if index < 0 {
		return "https://docs.google.com/spreadsheets/d/" + url + "/export?format=csv"
	}
	rest := url[index+len(marker):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return url[:index+len(marker)] + rest + "/export?format=csv"
}

// readAllBody drains one HTTP response body.
// Params: response with open body.
// Returns: body bytes or read error.
func readAllBody(response *http.Response) ([]byte, error) {
	return io.ReadAll(response.Body)
}
