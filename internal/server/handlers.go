package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/store"
)

type createBoardRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createBoard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	board, err := s.svc.CreateBoard(c.Request.Context(), req.Name, userID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

func (s *Server) getBoard(c *gin.Context) {
	state, err := s.svc.Store().BoardSnapshot(c.Request.Context(), c.Param("board"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type createColumnRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) createColumn(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	column, err := s.svc.CreateColumn(c.Request.Context(), c.Param("board"), req.Title, userID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, column)
}

type createCardRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) createCard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.svc.CreateCard(c.Request.Context(), c.Param("column"), req.Title, req.Description, userID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

type updateCardRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	AssigneeID      *string `json:"assigneeId"`
	ExpectedVersion *int64  `json:"expectedVersion"`
}

func (s *Server) updateCard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.svc.UpdateCard(c.Request.Context(), requestOwner(), store.UpdateCardParams{
		CardID:          c.Param("card"),
		Title:           req.Title,
		Description:     req.Description,
		AssigneeID:      req.AssigneeID,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         userID,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

type moveCardRequest struct {
	ToColumnID      string `json:"toColumnId" binding:"required"`
	InsertAfter     string `json:"insertAfter"`
	InsertBefore    string `json:"insertBefore"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

func (s *Server) moveCard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req moveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.svc.MoveCard(c.Request.Context(), requestOwner(), store.MoveCardParams{
		CardID:          c.Param("card"),
		ToColumnID:      req.ToColumnID,
		AfterCardID:     req.InsertAfter,
		BeforeCardID:    req.InsertBefore,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         userID,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) deleteCard(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var expected *int64
	if v := c.Query("expectedVersion"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expectedVersion must be an integer"})
			return
		}
		expected = &n
	}
	card, err := s.svc.DeleteCard(c.Request.Context(), requestOwner(), c.Param("card"), expected, userID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) listOnline(c *gin.Context) {
	boardID := c.Param("board")
	if _, err := s.svc.Store().GetBoard(c.Request.Context(), boardID); err != nil {
		s.abortWithError(c, err)
		return
	}
	userIDs, err := s.svc.Collab().ListOnline(c.Request.Context(), boardID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boardId": boardID, "userIds": userIDs})
}

func (s *Server) listAudit(c *gin.Context) {
	boardID := c.Param("board")
	if _, err := s.svc.Store().GetBoard(c.Request.Context(), boardID); err != nil {
		s.abortWithError(c, err)
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	entries, err := s.svc.Store().ListAudit(c.Request.Context(), boardID, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boardId": boardID, "entries": entries})
}
