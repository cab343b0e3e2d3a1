package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Helion39/Clarify.id/internal/feed"
	"github.com/Helion39/Clarify.id/internal/processor"
	"github.com/Helion39/Clarify.id/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Server struct {
	feed  *feed.Service
	store *storage.Store
}

func NewServer(f *feed.Service, store *storage.Store) *Server {
	return &Server{feed: f, store: store}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/news", s.getNews)
		api.GET("/news/:id", s.getNewsByID)
		api.POST("/news", s.createNews)
		api.PUT("/news/:id", s.updateNews)
		api.DELETE("/news/:id", s.deleteNews)
		api.POST("/news/refresh", s.refreshNews)
		api.GET("/categories", s.listCategories)
		api.GET("/sources", s.listSources)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// newsQuery 列表接口的查询参数。category 是单值的旧参数，
// categories 支持逗号分隔的多分类
type newsQuery struct {
	Category   string `form:"category"`
	Categories string `form:"categories"`
	Query      string `form:"query"`
	Source     string `form:"source"`
	TimeFilter string `form:"timeFilter" binding:"omitempty,oneof=all daily weekly monthly yearly"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
	Paginated  bool   `form:"paginated"`
}

func (s *Server) getNews(c *gin.Context) {
	var q newsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Invalid query parameters",
			"errors":  bindErrors(err),
		})
		return
	}

	var categories []string
	if q.Categories != "" {
		for _, part := range strings.Split(q.Categories, ",") {
			if part = strings.TrimSpace(part); part != "" {
				categories = append(categories, part)
			}
		}
	} else if q.Category != "" {
		categories = []string{q.Category}
	}

	env, list := s.feed.GetFeed(c.Request.Context(), feed.Params{
		Categories: categories,
		Query:      q.Query,
		Source:     q.Source,
		TimeFilter: q.TimeFilter,
		Page:       q.Page,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Paginated:  q.Paginated,
	})

	if env != nil {
		c.JSON(http.StatusOK, env)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getNewsByID(c *gin.Context) {
	a, err := s.feed.GetArticle(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch article"})
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

type createNewsRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url" binding:"required,url"`
	ImageURL    string    `json:"imageUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      string    `json:"source"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	IsVerified  bool      `json:"isVerified"`
}

func (s *Server) createNews(c *gin.Context) {
	var req createNewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Invalid article data",
			"errors":  bindErrors(err),
		})
		return
	}

	created, err := s.feed.CreateArticle(processor.Article{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		URL:         req.URL,
		ImageURL:    req.ImageURL,
		PublishedAt: req.PublishedAt,
		Source:      req.Source,
		Author:      req.Author,
		Category:    req.Category,
		IsVerified:  req.IsVerified,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateURL) {
			c.JSON(http.StatusConflict, gin.H{"message": "Article with this URL already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create article"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateNews(c *gin.Context) {
	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil || len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid article data"})
		return
	}

	a, err := s.store.UpdateArticle(c.Param("id"), updates)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update article"})
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) deleteNews(c *gin.Context) {
	ok, err := s.store.DeleteArticle(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete article"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted"})
}

func (s *Server) refreshNews(c *gin.Context) {
	var body struct {
		Category string `json:"category"`
	}
	// body 可为空：默认刷新全部分类
	_ = c.ShouldBindJSON(&body)

	res, err := s.feed.Refresh(c.Request.Context(), body.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to refresh news"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listCategories(c *gin.Context) {
	list, err := s.store.ListCategories()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) listSources(c *gin.Context) {
	// 默认只暴露白名单里核验过的来源
	verifiedOnly := c.Query("all") != "true"
	list, err := s.store.ListSources(verifiedOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch sources"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// bindErrors 把绑定失败展开成逐字段的错误列表
func bindErrors(err error) []gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, gin.H{
				"field":   fe.Field(),
				"message": fmt.Sprintf("failed on %q validation", fe.Tag()),
			})
		}
		return out
	}
	return []gin.H{{"message": err.Error()}}
}
