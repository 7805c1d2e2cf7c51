package node

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmnet/swarm/server/status"
)

type Status struct {
	node *Node
}

func NewStatus(node *Node) *Status {
	return &Status{
		node: node,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/peers", s.listPeersRoute)
	group.GET("/peers/:id", s.getPeerRoute)
	group.GET("/stats", s.statsRoute)
	group.GET("/config", s.configRoute)
	group.GET("/replica", s.replicaRoute)
}

func (s *Status) listPeersRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Protocol().Peers())
}

func (s *Status) getPeerRoute(c *gin.Context) {
	id := c.Param("id")
	peer, ok := s.node.Protocol().Peer(id)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, peer)
}

func (s *Status) statsRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Protocol().Stats())
}

func (s *Status) configRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Protocol().Config())
}

func (s *Status) replicaRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Replica().Records())
}

var _ status.Handler = &Status{}
