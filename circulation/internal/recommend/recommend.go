package recommend

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/model"
)

// Reader is the read-only slice of the repository the engine needs.
// Recommendations never write circulation state.
type Reader interface {
	ListReviews(ctx context.Context) ([]model.Review, error)
	ListUserLoanBookIDs(ctx context.Context, userID int) ([]int, error)
	GetBooksByIDs(ctx context.Context, ids []int) ([]model.Book, error)
}

// Engine ranks books for a user with user-user cosine similarity over
// review ratings. Best effort: an empty result is a valid answer.
type Engine struct {
	repo Reader
	log  *zap.Logger
}

func NewEngine(repo Reader, log *zap.Logger) *Engine {
	return &Engine{repo: repo, log: log.Named("recommend")}
}

func (e *Engine) ForUser(ctx context.Context, userID, limit int) ([]model.Book, error) {
	reviews, err := e.repo.ListReviews(ctx)
	if err != nil {
		return nil, err
	}
	loaned, err := e.repo.ListUserLoanBookIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	ranked := Rank(reviews, userID, loaned)
	e.log.Debug("ranked candidates", zap.Int("userId", userID), zap.Int("count", len(ranked)))
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	books, err := e.repo.GetBooksByIDs(ctx, ranked)
	if err != nil {
		return nil, err
	}
	// restore ranking order lost by the id lookup
	byID := make(map[int]model.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]model.Book, 0, len(ranked))
	for _, id := range ranked {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
		}
	}
	return ordered, nil
}

// Rank returns book ids ordered by predicted rating for the user,
// excluding books the user already loaned.
func Rank(reviews []model.Review, userID int, loanedBookIDs []int) []int {
	users, books, matrix := buildMatrix(reviews)
	uIdx := -1
	for i, id := range users {
		if id == userID {
			uIdx = i
		}
	}
	if uIdx < 0 {
		return nil
	}

	exclude := make(map[int]bool, len(loanedBookIDs))
	for _, id := range loanedBookIDs {
		exclude[id] = true
	}

	means := make([]float64, len(users))
	for i := range matrix {
		means[i] = nonZeroMean(matrix[i])
	}

	type scored struct {
		bookID int
		score  float64
	}
	var candidates []scored
	for b, bookID := range books {
		if exclude[bookID] || matrix[uIdx][b] != 0 {
			continue
		}
		var num, den float64
		for v := range users {
			if v == uIdx || matrix[v][b] == 0 {
				continue
			}
			sim := cosine(matrix[uIdx], matrix[v])
			num += sim * (matrix[v][b] - means[v])
			den += math.Abs(sim)
		}
		score := means[uIdx]
		if den > 0 {
			score += num / den
		}
		candidates = append(candidates, scored{bookID: bookID, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].bookID < candidates[j].bookID
	})

	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.bookID)
	}
	return out
}

// buildMatrix pivots reviews into a dense user x book rating matrix.
// A missing rating is zero.
func buildMatrix(reviews []model.Review) (users, books []int, matrix [][]float64) {
	userSet := map[int]bool{}
	bookSet := map[int]bool{}
	for _, r := range reviews {
		userSet[r.UserID] = true
		bookSet[r.BookID] = true
	}
	users = sortedKeys(userSet)
	books = sortedKeys(bookSet)

	uPos := make(map[int]int, len(users))
	for i, id := range users {
		uPos[id] = i
	}
	bPos := make(map[int]int, len(books))
	for i, id := range books {
		bPos[id] = i
	}

	matrix = make([][]float64, len(users))
	for i := range matrix {
		matrix[i] = make([]float64, len(books))
	}
	for _, r := range reviews {
		matrix[uPos[r.UserID]][bPos[r.BookID]] = float64(r.Rating)
	}
	return users, books, matrix
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func nonZeroMean(row []float64) float64 {
	var sum float64
	var n int
	for _, v := range row {
		if v != 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
