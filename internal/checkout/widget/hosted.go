package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/logging"
)

const probeTimeout = 10 * time.Second

var ErrUnknownSession = errors.New("unknown checkout session")

// HostedConfig configures the browser-hosted widget.
type HostedConfig struct {
	// ScriptURL is the processor's checkout.js.
	ScriptURL string
	// PublicURL is where the buyer's browser reaches Routes.
	PublicURL string
	// Present shows the buyer the page to pay on.
	Present func(url string)
	// OnFailure, if set, is told about processor-reported failures for audit.
	OnFailure func(ctx context.Context, orderRef, paymentRef, description string)
}

// Hosted serves a page that loads the processor's script, opens its checkout
// and posts the buyer's outcome back. Each Open gets its own session URL.
type Hosted struct {
	cfg    HostedConfig
	page   *template.Template
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	config Config
	result chan Outcome
	done   bool
}

func NewHosted(cfg HostedConfig) *Hosted {
	if cfg.Present == nil {
		cfg.Present = func(string) {}
	}
	return &Hosted{
		cfg:      cfg,
		page:     template.Must(template.New("checkout").Parse(checkoutPage)),
		logger:   logging.Component("widget"),
		sessions: make(map[string]*session),
	}
}

// Loader returns a LoadFunc that checks the processor script is reachable
// before handing out the hosted widget.
func (h *Hosted) Loader(client *http.Client) LoadFunc {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return func(ctx context.Context) (Widget, error) {
		if err := ProbeScript(ctx, client, h.cfg.ScriptURL); err != nil {
			return nil, &LoadError{Err: err}
		}
		h.logger.Info().Str("script", h.cfg.ScriptURL).Msg("checkout widget loaded")
		return h, nil
	}
}

// ProbeScript fetches scriptURL and fails unless it answers 200.
func ProbeScript(ctx context.Context, client *http.Client, scriptURL string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("script %s answered %d", scriptURL, resp.StatusCode)
	}
	return nil
}

func (h *Hosted) Open(ctx context.Context, cfg Config) (Outcome, error) {
	id := uuid.NewString()
	s := &session{config: cfg, result: make(chan Outcome, 1)}

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
	}()

	url := strings.TrimRight(h.cfg.PublicURL, "/") + "/pay/" + id
	h.logger.Info().Str("order_ref", cfg.OrderRef).Str("url", url).Msg("checkout opened")
	h.cfg.Present(url)

	select {
	case out := <-s.result:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Routes serves the checkout pages and their result callbacks.
func (h *Hosted) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/pay/{session}", h.servePage)
	r.Post("/pay/{session}/result", h.receiveResult)
	return r
}

func (h *Hosted) lookup(id string) (*session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

type pageData struct {
	ScriptURL string
	ResultURL string
	Options   Config
}

func (h *Hosted) servePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	s, err := h.lookup(id)
	if err != nil {
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.page.Execute(w, pageData{
		ScriptURL: h.cfg.ScriptURL,
		ResultURL: "/pay/" + id + "/result",
		Options:   s.config,
	}); err != nil {
		h.logger.Error().Err(err).Msg("failed to render checkout page")
	}
}

type resultRequest struct {
	Event       string `json:"event"`
	OrderRef    string `json:"razorpay_order_id"`
	PaymentRef  string `json:"razorpay_payment_id"`
	Signature   string `json:"razorpay_signature"`
	Description string `json:"description"`
}

func (h *Hosted) receiveResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")

	var req resultRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid result", http.StatusBadRequest)
		return
	}

	out := Outcome{
		OrderRef:    req.OrderRef,
		PaymentRef:  req.PaymentRef,
		Signature:   req.Signature,
		Description: req.Description,
	}
	switch req.Event {
	case "success":
		out.Result = Succeeded
	case "failed":
		out.Result = Failed
	case "dismissed":
		out.Result = Dismissed
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[id]
	resolved := ok && s.done
	if ok && !s.done {
		s.done = true
		if out.OrderRef == "" {
			out.OrderRef = s.config.OrderRef
		}
		s.result <- out
	}
	h.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	case resolved:
		http.Error(w, "checkout session already finished", http.StatusConflict)
		return
	}

	if out.Result == Failed && h.cfg.OnFailure != nil {
		h.cfg.OnFailure(r.Context(), out.OrderRef, out.PaymentRef, out.Description)
	}
	w.WriteHeader(http.StatusNoContent)
}

const checkoutPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Options.Name}} checkout</title>
<script src="{{.ScriptURL}}"></script>
</head>
<body>
<p id="status">Opening the payment window...</p>
<script>
(function () {
  var resultURL = {{.ResultURL}};
  var finished = false;
  function report(body) {
    if (finished) { return; }
    finished = true;
    fetch(resultURL, {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify(body)
    }).then(function () {
      document.getElementById("status").textContent = "You can close this window.";
    });
  }
  var options = {{.Options}};
  options.handler = function (resp) {
    report({
      event: "success",
      razorpay_order_id: resp.razorpay_order_id,
      razorpay_payment_id: resp.razorpay_payment_id,
      razorpay_signature: resp.razorpay_signature
    });
  };
  options.modal = {ondismiss: function () { report({event: "dismissed"}); }};
  var checkout = new Razorpay(options);
  checkout.on("payment.failed", function (resp) {
    var err = resp.error || {};
    var meta = err.metadata || {};
    report({
      event: "failed",
      razorpay_order_id: meta.order_id || options.order_id,
      razorpay_payment_id: meta.payment_id || "",
      description: err.description || "payment failed"
    });
  });
  checkout.open();
})();
</script>
</body>
</html>
`
