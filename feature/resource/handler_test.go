package resource

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/engine/enginetest"
	"idm-reconciler/core/middleware/auth"
	"idm-reconciler/core/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T) (*fiber.App, *enginetest.Fixture) {
	f := enginetest.New(t)
	app := server.NewApp(server.Config{}, zap.NewNop())
	app.Use(auth.New(auth.Config{ApiKey: "secret", Domain: enginetest.Domain}))
	NewHandler(NewService(f.Core)).RegisterRoutes(app)
	return app, f
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.Header, "secret")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, []byte(buf.String())
}

const userProvision = `{"anyType":"USER","objectClass":"__ACCOUNT__","mapping":{"items":[
	{"intAttrName":"username","extAttrName":"uid","connObjectKey":true,"purpose":"BOTH"},
	{"intAttrName":"email","extAttrName":"mail","purpose":"BOTH"}]}}`

func TestHandleCRUD(t *testing.T) {
	app, _ := setupTestApp(t)

	body := `{"key":"ws-new","connector":"` + enginetest.Connector + `","provisions":[` + userProvision + `]}`
	status, _ := call(t, app, "POST", "/resources", body)
	assert.Equal(t, 201, status)

	status, raw := call(t, app, "GET", "/resources", "")
	assert.Equal(t, 200, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Len(t, list, 2)

	status, _ = call(t, app, "PUT", "/resources/ws-new", `{"propagationPriority":3,"provisions":[`+userProvision+`]}`)
	assert.Equal(t, 200, status)

	status, raw = call(t, app, "GET", "/resources/ws-new", "")
	assert.Equal(t, 200, status)
	var res map[string]any
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.EqualValues(t, 3, res["propagationPriority"])
	assert.Equal(t, enginetest.Connector, res["connector"])

	status, _ = call(t, app, "DELETE", "/resources/ws-new", "")
	assert.Equal(t, 204, status)
}

func TestHandleConnObjects(t *testing.T) {
	app, f := setupTestApp(t)
	f.PutRemote(t, "rossini", enginetest.Attr("uid", "rossini"))
	f.PutRemote(t, "bellini", enginetest.Attr("uid", "bellini"))

	base := "/resources/" + enginetest.Resource + "/USER"

	status, raw := call(t, app, "GET", base+"/connObjects?size=1&orderBy=uid%20desc", "")
	assert.Equal(t, 200, status)
	var page ConnObjectPage
	require.NoError(t, json.Unmarshal(raw, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "uid==rossini", page.Items[0].FIQL)
	assert.Equal(t, 1, page.RemainingPagedResults)

	status, raw = call(t, app, "GET", base+"/connObjects/byAny/"+enginetest.Rossini, "")
	assert.Equal(t, 200, status)
	assert.Contains(t, string(raw), "uid==rossini")

	status, _ = call(t, app, "GET", base+"/connObjects/byValue/bellini", "")
	assert.Equal(t, 200, status)

	status, _ = call(t, app, "GET", base+"/connObjects/byValue/verdi", "")
	assert.Equal(t, 404, status)

	status, raw = call(t, app, "GET", base+"/connObjectKeyValue/"+enginetest.Rossini, "")
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"value":"rossini"}`, string(raw))

	status, raw = call(t, app, "POST", base+"/syncToken", "")
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"syncToken":"2"}`, string(raw))

	status, _ = call(t, app, "DELETE", base+"/syncToken", "")
	assert.Equal(t, 204, status)
}

func TestHandleErrors(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"Missing", "GET", "/resources/missing", "", 404},
		{"Bad body", "POST", "/resources", "{", 400},
		{"Unknown connector", "POST", "/resources", `{"key":"x","connector":"nope"}`, 404},
		{"Duplicate", "POST", "/resources", `{"key":"` + enginetest.Resource + `","connector":"` + enginetest.Connector + `"}`, 400},
		{"No provision", "GET", "/resources/" + enginetest.Resource + "/GROUP/connObjects", "", 404},
		{"Check", "POST", "/resources/check", `{"connector":"` + enginetest.Connector + `"}`, 204},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestParseOrderBy(t *testing.T) {
	assert.Nil(t, parseOrderBy(""))
	assert.Equal(t, []connid.SortKey{
		{Field: "uid", Ascending: true},
		{Field: "mail", Ascending: false},
	}, parseOrderBy("uid, mail DESC"))
}
