package main

import (
	"fmt"
	"net/http"

	"github.com/james226/scene-bridge/agentlink"
)

type healthController struct {
	client *agentlink.Client
}

func (c healthController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Healthy\n")
	fmt.Fprintf(w, "agent: %s\n", c.client.State())
}
