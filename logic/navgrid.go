package logic

import (
	"fmt"
	"math"
)

// Tile types
const (
	TileEmpty = 0
	TileWall  = 1
)

// GameMap is the walkability grid used for navigable-path distances between
// rooms. One tile covers TileSize world units.
type GameMap struct {
	Width    int
	Height   int
	TileSize float64
	Tiles    [][]int // 0: Walkable, 1: Wall
}

// NewGameMapFromRows builds a grid from text rows, '#' for walls and anything
// else walkable. Rows shorter than the widest one are padded with walls.
func NewGameMapFromRows(rows []string, tileSize float64) (*GameMap, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("nav grid has no rows")
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("nav grid tile size must be positive, got %v", tileSize)
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	tiles := make([][]int, len(rows))
	for y, r := range rows {
		tiles[y] = make([]int, width)
		for x := 0; x < width; x++ {
			if x >= len(r) || r[x] == '#' {
				tiles[y][x] = TileWall
			}
		}
	}
	return &GameMap{Width: width, Height: len(rows), TileSize: tileSize, Tiles: tiles}, nil
}

// tileOf floors so positions left of or above the origin land on negative,
// out of bounds tiles.
func (m *GameMap) tileOf(p Vector2) (int, int) {
	return int(math.Floor(p.X / m.TileSize)), int(math.Floor(p.Y / m.TileSize))
}

func (m *GameMap) walkableTile(x, y int) bool {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return false
	}
	return m.Tiles[y][x] == TileEmpty
}

// IsWalkable checks collision with grid
func (m *GameMap) IsWalkable(x, y float64) bool {
	gx, gy := m.tileOf(Vector2{X: x, Y: y})
	return m.walkableTile(gx, gy)
}

// PathLength returns the 4-connected walking distance between two world
// positions, or false when either end is blocked or no route exists.
func (m *GameMap) PathLength(from, to Vector2) (float64, bool) {
	sx, sy := m.tileOf(from)
	tx, ty := m.tileOf(to)
	if !m.walkableTile(sx, sy) || !m.walkableTile(tx, ty) {
		return 0, false
	}
	if sx == tx && sy == ty {
		return 0, true
	}

	dist := make([]int, m.Width*m.Height)
	for i := range dist {
		dist[i] = -1
	}
	idx := func(x, y int) int { return y*m.Width + x }
	queue := [][2]int{{sx, sy}}
	dist[idx(sx, sy)] = 0
	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[idx(cur[0], cur[1])]
		for _, dir := range dirs {
			nx, ny := cur[0]+dir[0], cur[1]+dir[1]
			if !m.walkableTile(nx, ny) || dist[idx(nx, ny)] >= 0 {
				continue
			}
			dist[idx(nx, ny)] = d + 1
			if nx == tx && ny == ty {
				return float64(d+1) * m.TileSize, true
			}
			queue = append(queue, [2]int{nx, ny})
		}
	}
	return 0, false
}
