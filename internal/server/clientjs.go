package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleClientJS serves a small browser helper that fetches variants and
// reports conversions against this server.
func (s *Server) handleClientJS(c echo.Context) error {
	r := c.Request()

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	c.Response().Header().Set("Cache-Control", "public, max-age=60")
	return c.Blob(http.StatusOK, "application/javascript", []byte(GenerateClientScript(serverURL)))
}

// GenerateClientScript returns the sg.js source bound to serverURL.
//
// The script exposes window.splitgoat.variant(experimentId) and
// window.splitgoat.convert(experimentId, eventType, value). The visitor id is
// kept in localStorage and variants are cached per page load.
func GenerateClientScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S=%q;

  var uid=localStorage.getItem('sg_uid');
  if(!uid){
    uid=crypto.randomUUID();
    localStorage.setItem('sg_uid',uid);
  }

  var cache={};

  function api(path){
    return S+'/api/experiments/'+encodeURIComponent(path[0])+path[1];
  }

  function variant(exp){
    if(!cache[exp]){
      cache[exp]=fetch(api([exp,'/variant?user_id='+encodeURIComponent(uid)]))
        .then(function(r){return r.ok?r.json():{variant:'control'};})
        .then(function(d){return d.variant;})
        .catch(function(){return 'control';});
    }
    return cache[exp];
  }

  function convert(exp,eventType,value){
    return variant(exp).then(function(v){
      var body={user_id:uid,variant:v};
      if(eventType){body.event_type=eventType;}
      if(typeof value==='number'){body.event_value=value;}
      return fetch(api([exp,'/conversions']),{
        method:'POST',
        headers:{'Content-Type':'application/json'},
        body:JSON.stringify(body),
        keepalive:true
      }).catch(function(){});
    });
  }

  window.splitgoat={variant:variant,convert:convert,userId:uid};
})();
`, serverURL)
}
