package webserver

import (
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JsoniterSerializer implements echo.JSONSerializer on top of jsoniter.
type JsoniterSerializer struct{}

func NewJsoniterSerializer() *JsoniterSerializer {
	return &JsoniterSerializer{}
}

func (s *JsoniterSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (s *JsoniterSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err == io.EOF {
		return echo.NewHTTPError(400, "empty request body").SetInternal(err)
	}
	return err
}

var idNode *snowflake.Node

func init() {
	var err error
	idNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

const RequestIDHeader = "X-Request-Id"

// RequestID tags every request with a snowflake id.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = idNode.Generate().String()
			}
			c.Response().Header().Set(RequestIDHeader, rid)
			c.Set("request_id", rid)
			return next(c)
		}
	}
}

// ZapLogger logs request outcomes through the global zap logger.
func ZapLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				fields = append(fields, zap.String("request_id", rid))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
				zap.L().Warn("http request", fields...)
				return nil
			}
			if res.Status >= 500 {
				zap.L().Error("http request", fields...)
			} else {
				zap.L().Debug("http request", fields...)
			}
			return nil
		}
	}
}
