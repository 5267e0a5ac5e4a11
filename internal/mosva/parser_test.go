package mosva

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

const sampleMarkdown = `# Ordinary Members

**ALAM MARITIM (M) SDN BHD**
No. 38f, Level 2, Jalan Radin Anum
Bandar Baru Seri Petaling
57000 Kuala Lumpur
Tel: 03-9058 2244
Fax: 03-9059 6845
[www.alam-maritim.com.my](http://www.alam-maritim.com.my)

**BUMI ARMADA NAVIGATION SDN BHD**
Level 21, Menara Perak
Tel 03-2171 5799
www.bumiarmada.com
info@bumiarmada.com

**EMPTY CO**
`

func TestParse(t *testing.T) {
	t.Parallel()

	doc := Document{Markdown: sampleMarkdown, Metadata: Metadata{SourceURL: "https://mosva.org/members"}}
	companies := Parse(doc, vessel.MembershipOrdinary)
	require.Len(t, companies, 2)

	alam := companies[0]
	require.Equal(t, "ALAM MARITIM (M) SDN BHD", alam.Name)
	require.Equal(t, "03-9058 2244", alam.Phone)
	require.Equal(t, "03-9059 6845", alam.Fax)
	require.Equal(t, "http://www.alam-maritim.com.my", alam.Website)
	require.Equal(t,
		"No. 38f, Level 2, Jalan Radin Anum, Bandar Baru Seri Petaling, 57000 Kuala Lumpur",
		alam.Address)
	require.Equal(t, vessel.MembershipOrdinary, alam.MembershipType)
	require.Equal(t, "https://mosva.org/members", alam.SourceURL)

	bumi := companies[1]
	require.Equal(t, "03-2171 5799", bumi.Phone)
	require.Equal(t, "http://www.bumiarmada.com", bumi.Website)
	require.Equal(t, "info@bumiarmada.com", bumi.Email)
	require.Equal(t, "Level 21, Menara Perak", bumi.Address)
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDoc(t, filepath.Join(dir, OrdinaryMembersFile), sampleMarkdown)
	writeDoc(t, filepath.Join(dir, AssociateMembersFile), "**SHIPYARD ONE**\nLot 5, Labuan\nTel: 087-411 111\n")

	companies, err := LoadDir(dir, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, companies, 3)
	require.Equal(t, vessel.MembershipAssociate, companies[2].MembershipType)
}

func TestLoadDirMissingFiles(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(t.TempDir(), nil)
	require.Error(t, err)
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), OrdinaryMembersFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := LoadFile(path, vessel.MembershipOrdinary)
	require.Error(t, err)
}

func TestDirectoryCompanies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDoc(t, filepath.Join(dir, OrdinaryMembersFile), sampleMarkdown)
	writeDoc(t, filepath.Join(dir, AssociateMembersFile), "")

	d := Directory{Dir: dir, Logger: zap.NewNop()}
	companies, err := d.Companies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Companies(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func writeDoc(t *testing.T, path, markdown string) {
	t.Helper()
	data, err := json.Marshal(Document{Markdown: markdown})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
