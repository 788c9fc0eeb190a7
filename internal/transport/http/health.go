package http

import (
	"encoding/json"
	"net/http"
)

// HealthHandler reports liveness. Readiness of the database and the payment
// gateway is not probed here.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
