package collect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beanjamin25/beanbot/ledger"
)

const testCSV = `id,identifier,generation_id
1,bulbasaur,1
4,charmander,1
7,squirtle,1
152,chikorita,2
`

func writeTestCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pokeDB.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	catalog, err := LoadCatalog(writeTestCatalog(t))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	g, err := NewGame(context.Background(), ledger.NewFileStore(t.TempDir()), catalog)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	g.pick = func(n int) int { return 0 } // always bulbasaur
	g.shinyRoll = func() bool { return false }
	// no waiting in tests
	g.cooldown = ledger.NewCooldown(0)
	return g
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(writeTestCatalog(t))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if catalog.Len() != 4 {
		t.Errorf("Len = %d, want 4", catalog.Len())
	}
	sp, ok := catalog.ByID(152)
	if !ok || sp.Name != "chikorita" || sp.Generation != 2 {
		t.Errorf("ByID(152) = %+v, %v", sp, ok)
	}
}

func TestLoadCatalogMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,bulbasaur\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestCatchFirstAndRepeat(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	got := g.Catch(ctx, "alice")
	if !strings.HasPrefix(got, "alice, you caught a Bulbasaur!") {
		t.Errorf("first catch = %q", got)
	}
	got = g.Catch(ctx, "alice")
	if !strings.HasPrefix(got, "alice, you caught another Bulbasaur!") {
		t.Errorf("repeat catch = %q", got)
	}
}

func TestCatchShiny(t *testing.T) {
	g := newTestGame(t)
	g.shinyRoll = func() bool { return true }

	got := g.Catch(context.Background(), "alice")
	if !strings.Contains(got, "and it was a shiny!") {
		t.Errorf("shiny catch = %q", got)
	}
	if !strings.Contains(g.Status("alice"), "you have caught 1 shinies!") {
		t.Errorf("status = %q", g.Status("alice"))
	}
}

func TestCatchCooldown(t *testing.T) {
	g := newTestGame(t)
	g.cooldown = ledger.NewCooldown(time.Minute)
	ctx := context.Background()

	g.Catch(ctx, "alice")
	got := g.Catch(ctx, "alice")
	if !strings.Contains(got, "you need to wait") {
		t.Errorf("second throw inside window = %q", got)
	}
	// cooldown is per user
	if got := g.Catch(ctx, "bob"); !strings.Contains(got, "you caught") {
		t.Errorf("other user throw = %q", got)
	}
}

func TestCatchExhaustsPokeballs(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	for i := 0; i < initialPokeballs; i++ {
		if got := g.Catch(ctx, "alice"); !strings.Contains(got, "you caught") {
			t.Fatalf("throw %d = %q", i+1, got)
		}
	}
	got := g.Catch(ctx, "alice")
	if !strings.Contains(got, "you do not have any pokeballs left") {
		t.Errorf("exhausted throw = %q", got)
	}

	if got := g.AddPokeballs("alice"); !strings.Contains(got, "you now have 5 pokeballs!") {
		t.Errorf("replenish = %q", got)
	}
	if got := g.Catch(ctx, "alice"); !strings.Contains(got, "you caught") {
		t.Errorf("throw after replenish = %q", got)
	}
}

func TestStatusCompletion(t *testing.T) {
	g := newTestGame(t)
	g.Catch(context.Background(), "alice")

	got := g.Status("alice")
	if !strings.Contains(got, "your Pokedex is 25.000% complete") {
		t.Errorf("status = %q", got)
	}
	if !strings.Contains(got, "you have 4 pokeballs left!") {
		t.Errorf("status = %q", got)
	}
}

func TestStandings(t *testing.T) {
	g := newTestGame(t)
	ctx := context.Background()

	g.Catch(ctx, "alice") // bulbasaur
	g.pick = func(n int) int { return 1 }
	g.Catch(ctx, "alice") // charmander
	g.shinyRoll = func() bool { return true }
	g.Catch(ctx, "bob") // shiny charmander

	got := g.Standings()
	want := "Current standings: 1: alice with 2 pokemon\t2: bob with 1 pokemon and 1 shinies!\t"
	if got != want {
		t.Errorf("standings = %q, want %q", got, want)
	}
}

func TestAlbumsPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	catalog, err := LoadCatalog(writeTestCatalog(t))
	if err != nil {
		t.Fatal(err)
	}

	g, err := NewGame(ctx, ledger.NewFileStore(dir), catalog)
	if err != nil {
		t.Fatal(err)
	}
	g.pick = func(n int) int { return 0 }
	g.shinyRoll = func() bool { return false }
	g.cooldown = ledger.NewCooldown(0)
	g.Catch(ctx, "alice")

	g2, err := NewGame(ctx, ledger.NewFileStore(dir), catalog)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(g2.Status("alice"), "25.000% complete") {
		t.Errorf("status after reload = %q", g2.Status("alice"))
	}
}
