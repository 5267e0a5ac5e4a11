package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

var perdana = vessel.Company{Name: "Perdana Petroleum"}

const fleetPage = `<html><body>
<div class="fleet-list">
  <div class="vessel-card">
    <h3>Vessel Name: Perdana Express</h3>
    <p>IMO: 9312345</p><p>MMSI: 533123456</p>
    <p>Built: 2008</p><p>Length: 58.7 m</p>
  </div>
  <div class="vessel-card">
    <h3>SEA TIGER 2</h3>
    <p>Year 2012</p>
  </div>
</div>
</body></html>`

func TestVessels_StructuredElements(t *testing.T) {
	t.Parallel()

	got, err := Vessels([]byte(fleetPage), "https://perdana.com/fleet", perdana)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	require.Equal(t, "Perdana Express", first.VesselName)
	require.Equal(t, "9312345", first.IMONumber)
	require.Equal(t, "533123456", first.MMSINumber)
	require.Equal(t, 2008, *first.BuildYear)
	require.InDelta(t, 58.7, *first.LengthOverallM, 1e-9)
	require.Equal(t, "Perdana Petroleum", first.OwnerCompany)
	require.Equal(t, "https://perdana.com/fleet", first.SourceURL)
	require.Equal(t, []string{SourceCompanyWebsite}, first.DataSources)

	second := got[1]
	require.Equal(t, "SEA TIGER 2", second.VesselName)
	require.Empty(t, second.IMONumber)
	require.Equal(t, 2012, *second.BuildYear)
}

func TestVessels_KeywordTable(t *testing.T) {
	t.Parallel()

	page := `<table>
<tr><td>Vessel Name</td><td>BUNGA RAYA</td></tr>
<tr><td>IMO</td><td>9400001</td></tr>
</table>`
	got, err := Vessels([]byte(page), "https://x.my/fleet", perdana)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "BUNGA RAYA", got[0].VesselName)
	require.Equal(t, "9400001", got[0].IMONumber)
}

func TestParseElement_LeadingLineName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"SEA TIGER 3", "Sea Tiger 3"} {
		v, ok := parseElement(name+"\nBuilt 2015", "https://perdana.com/fleet", perdana)
		require.True(t, ok, name)
		require.Equal(t, name, v.VesselName)
		require.Equal(t, 2015, *v.BuildYear, name)
	}
}

func TestVessels_DedupeByNameFillsGaps(t *testing.T) {
	t.Parallel()

	page := `<div class="vessel"><p>Name: Sea Lion</p></div>
<div class="vessel"><p>NAME: SEA LION</p><p>Built 2001</p></div>`
	got, err := Vessels([]byte(page), "https://x.my/fleet", perdana)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Sea Lion", got[0].VesselName)
	require.Equal(t, 2001, *got[0].BuildYear)
}

func TestVessels_TextFallback(t *testing.T) {
	t.Parallel()

	page := `<p>Our fleet includes MV OCEAN STAR. Also the vessel SEA HAWK - now in service. And ship XY.</p>`
	got, err := Vessels([]byte(page), "https://x.my/about", perdana)
	require.NoError(t, err)

	names := make([]string, 0, len(got))
	for _, v := range got {
		names = append(names, v.VesselName)
		require.Equal(t, perdana.Name, v.OwnerCompany)
	}
	require.Equal(t, []string{"OCEAN STAR", "SEA HAWK"}, names)
}

func TestVessels_NothingFound(t *testing.T) {
	t.Parallel()

	got, err := Vessels([]byte(`<p>Contact us today.</p>`), "https://x.my", perdana)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestText_BlocksAndRows(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div>
  <h3>  SEA   TIGER </h3>
  <table><tr><td>IMO</td><td>1234567</td></tr></table>
  <script>var hidden = 1;</script>
</div>`))
	require.NoError(t, err)
	require.Equal(t, "SEA TIGER\nIMO 1234567", Text(doc.Find("div")))
}
