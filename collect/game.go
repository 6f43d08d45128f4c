package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/beanjamin25/beanbot/ledger"
)

const (
	// albumLedger is the document name user pokedexes persist under.
	albumLedger = "pokedex"

	// initialPokeballs is granted to every new player, and is also the
	// size of each replenishment.
	initialPokeballs = 5

	// shinyOdds is the 1-in-N chance of a catch being shiny.
	shinyOdds = 256

	// catchWindow is the per-user cooldown between throws.
	catchWindow = time.Second

	standingsSize = 5
)

// Album is one user's pokedex: the species they have caught, and which
// of those were shiny.
type Album struct {
	Caught map[string]bool `json:"caught"`
	Shiny  map[string]bool `json:"shiny"`
}

func newAlbum() Album {
	return Album{Caught: make(map[string]bool), Shiny: make(map[string]bool)}
}

// Game runs the catch game over a catalog, persisting albums through
// the ledger store after every catch.
type Game struct {
	catalog *Catalog
	store   ledger.Store

	mu        sync.Mutex
	albums    map[string]Album
	pokeballs map[string]int

	cooldown *ledger.Cooldown

	// injectable for tests
	pick      func(n int) int
	shinyRoll func() bool
}

// NewGame loads the persisted albums and wires up the cooldown and
// the random rolls.
func NewGame(ctx context.Context, store ledger.Store, catalog *Catalog) (*Game, error) {
	g := &Game{
		catalog:   catalog,
		store:     store,
		albums:    make(map[string]Album),
		pokeballs: make(map[string]int),
		cooldown:  ledger.NewCooldown(catchWindow),
		pick:      rand.Intn,
		shinyRoll: func() bool { return rand.Intn(shinyOdds) == 0 },
	}
	err := store.Load(ctx, albumLedger, &g.albums)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("load pokedex: %w", err)
	}
	return g, nil
}

// Catch throws a pokeball for the user and returns the chat reply.
// Throws are rate limited per user and consume a finite pokeball
// supply that AddPokeballs replenishes.
func (g *Game) Catch(ctx context.Context, user string) string {
	if ok, _ := g.cooldown.Try(user); !ok {
		return fmt.Sprintf("%s, you need to wait %d seconds between throwing pokeballs!", user, int(catchWindow.Seconds()))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	remaining, ok := g.pokeballs[user]
	if !ok {
		remaining = initialPokeballs
	}
	if remaining == 0 {
		return fmt.Sprintf("%s, you do not have any pokeballs left! BibleThump", user)
	}
	g.pokeballs[user] = remaining - 1

	sp := g.catalog.At(g.pick(g.catalog.Len()))
	shiny := g.shinyRoll()

	album, ok := g.albums[user]
	if !ok {
		album = newAlbum()
	}
	if album.Caught == nil {
		album.Caught = make(map[string]bool)
	}
	if album.Shiny == nil {
		album.Shiny = make(map[string]bool)
	}
	g.albums[user] = album
	first := !album.Caught[sp.Name]
	album.Caught[sp.Name] = true
	if shiny {
		album.Shiny[sp.Name] = true
	}
	if err := g.store.Save(ctx, albumLedger, g.albums); err != nil {
		slog.Error("persist pokedex", "user", user, "error", err)
	}

	msg := fmt.Sprintf("%s, you caught", user)
	if first {
		msg += fmt.Sprintf(" a %s!", title(sp.Name))
	} else {
		msg += fmt.Sprintf(" another %s!", title(sp.Name))
	}
	if shiny {
		msg += " and it was a shiny!"
	}
	return msg + " " + g.statusLocked(user)
}

// AddPokeballs grants the user another batch of pokeballs and returns
// the chat reply. Wired to a channel points redemption.
func (g *Game) AddPokeballs(user string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining, ok := g.pokeballs[user]
	if !ok {
		remaining = initialPokeballs
	}
	g.pokeballs[user] = remaining + initialPokeballs
	return fmt.Sprintf("%s, you now have %d pokeballs!", user, g.pokeballs[user])
}

// Status reports the user's pokedex completion and pokeball count.
func (g *Game) Status(user string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(user)
}

func (g *Game) statusLocked(user string) string {
	album := g.albums[user]
	completion := 100 * float64(len(album.Caught)) / float64(g.catalog.Len())
	remaining, ok := g.pokeballs[user]
	if !ok {
		remaining = initialPokeballs
	}

	msg := fmt.Sprintf("%s, your Pokedex is %.3f%% complete", user, completion)
	if len(album.Shiny) > 0 {
		msg += fmt.Sprintf(" and you have caught %d shinies!", len(album.Shiny))
	}
	return msg + fmt.Sprintf(" and you have %d pokeballs left!", remaining)
}

// Standings renders the top collectors ranked by species caught, ties
// broken by shiny count.
func (g *Game) Standings() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	type row struct {
		user   string
		caught int
		shiny  int
	}
	rows := make([]row, 0, len(g.albums))
	for user, album := range g.albums {
		rows = append(rows, row{user: user, caught: len(album.Caught), shiny: len(album.Shiny)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].caught != rows[j].caught {
			return rows[i].caught > rows[j].caught
		}
		if rows[i].shiny != rows[j].shiny {
			return rows[i].shiny > rows[j].shiny
		}
		return rows[i].user > rows[j].user
	})
	if len(rows) > standingsSize {
		rows = rows[:standingsSize]
	}

	var sb strings.Builder
	sb.WriteString("Current standings: ")
	for i, r := range rows {
		fmt.Fprintf(&sb, "%d: %s with %d pokemon", i+1, r.user, r.caught)
		if r.shiny > 0 {
			fmt.Fprintf(&sb, " and %d shinies!", r.shiny)
		}
		sb.WriteString("\t")
	}
	return sb.String()
}

func title(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return name
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
