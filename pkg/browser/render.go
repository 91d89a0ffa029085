package browser

import "context"

// extractionFamily is the pool slot used for content-page rendering,
// kept separate from the per-engine slots so a SERP browser and a page
// renderer never thrash each other out of the pool.
const extractionFamily = "extract"

// PageRenderer renders arbitrary pages through the pool. It satisfies
// the extractor's renderer dependency without the extractor knowing
// about pooling or health checks.
type PageRenderer struct {
	pool *Pool
}

func NewPageRenderer(pool *Pool) *PageRenderer {
	return &PageRenderer{pool: pool}
}

// Render acquires the extraction browser and renders one page. A
// session-closure error tears the whole pool down so the next call
// starts from clean processes.
func (r *PageRenderer) Render(ctx context.Context, url string) (string, error) {
	inst, err := r.pool.Acquire(ctx, extractionFamily)
	if err != nil {
		return "", err
	}
	html, err := inst.Render(ctx, url)
	if err != nil {
		if IsSessionClosed(err) {
			r.pool.ReleaseAll()
		} else {
			r.pool.Drop(extractionFamily)
		}
		return "", err
	}
	return html, nil
}
