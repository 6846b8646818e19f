package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"trusight/apperr"
	"trusight/logger"
	"trusight/models"
	"trusight/services"
)

type ShareHandler struct {
	shares *services.ShareService
}

func NewShareHandler(shares *services.ShareService) *ShareHandler {
	return &ShareHandler{shares: shares}
}

// Create: POST /api/share → {"success":true,"shareId":"…","shareUrl":"…"}
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil {
		respondError(w, r, unavailable("sharing"))
		return
	}

	var req models.ShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rec, shareURL, err := h.shares.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"shareId":  rec.ID,
		"shareUrl": shareURL,
	})
}

// Get: GET /api/share?id=… → {"success":true,"data":{…}}
func (h *ShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" || h.shares == nil {
		respondError(w, r, apperr.NotFound("shared analysis not found or expired"))
		return
	}

	rec, err := h.shares.Get(r.Context(), id)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			logger.Log.Warnf("[SHARE] get %s: %v", id, err)
		}
		respondError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rec,
	})
}

var shareTmpl = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>TruSight analysis</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{background:#0a0e1a;color:#e2e8f0;font-family:'Segoe UI',system-ui,sans-serif;min-height:100vh;display:flex;align-items:center;justify-content:center;padding:20px}
.card{background:#111827;border:1px solid #1f2937;border-radius:16px;max-width:680px;width:100%;padding:32px;box-shadow:0 25px 50px rgba(0,0,0,.5)}
.bias{font-size:56px;font-weight:800;line-height:1}
.bias.left-leaning{color:#3b82f6}.bias.right-leaning{color:#ef4444}.bias.center{color:#a855f7}.bias.neutral{color:#22c55e}
.confidence{font-size:18px;font-weight:600;margin:8px 0 4px;color:#94a3b8}
.owner{color:#64748b;margin-bottom:24px}
.summary{color:#cbd5e1;line-height:1.6;margin-bottom:24px}
.section{margin-bottom:20px}
.section h3{font-size:13px;text-transform:uppercase;letter-spacing:.1em;color:#64748b;margin-bottom:10px}
.tag{display:inline-block;background:#1e293b;border:1px solid #334155;border-radius:6px;padding:4px 10px;font-size:13px;margin:3px;color:#94a3b8}
.footer{margin-top:28px;padding-top:20px;border-top:1px solid #1f2937;display:flex;align-items:center;justify-content:space-between;flex-wrap:wrap;gap:8px}
.footer a{color:#3b82f6;text-decoration:none;font-size:14px}
.footer a:hover{text-decoration:underline}
.badge{font-size:12px;color:#475569}
</style>
</head>
<body>
<div class="card">
  <div class="badge">Analysed by TruSight</div>
  <div id="content" style="margin-top:16px;color:#475569">Loading...</div>
</div>
<script>
const esc=s=>String(s).replace(/[&<>"']/g,c=>({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));
fetch('/api/share?id='+encodeURIComponent({{.}}))
  .then(r=>{if(!r.ok)throw new Error();return r.json()})
  .then(res=>{
    const d=res.data.analysisData;
    const b=(d.bias||'Center');
    const pct=Math.round((d.confidence||0)*100);
    const missing=(d.missingPerspectives||[]).map(m=>'<span class="tag">'+esc(m)+'</span>').join('');
    document.getElementById('content').innerHTML=
      '<div class="bias '+b.toLowerCase()+'">'+esc(b)+'</div>'+
      '<div class="confidence">'+pct+'% confidence</div>'+
      '<div class="owner">'+esc(d.owner||'Unknown Publisher')+'</div>'+
      '<div class="summary">'+esc(d.reasoning||'')+'</div>'+
      (missing?'<div class="section"><h3>Missing perspectives</h3>'+missing+'</div>':'')+
      '<div class="footer"><a href="/">Analyse your own article →</a><span class="badge">Shared result</span></div>';
  })
  .catch(()=>{document.getElementById('content').innerHTML='<div style="color:#ef4444">This link has expired or does not exist</div>';});
</script>
</body>
</html>`))

// ShowPage: GET /s/{id} → HTML share page
func (h *ShareHandler) ShowPage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/s/")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shareTmpl.Execute(w, id); err != nil {
		logger.Log.Warnf("[SHARE] render page %s: %v", id, err)
	}
}
