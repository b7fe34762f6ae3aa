// Package dispatcher implements the command dispatcher (C8): parses a
// single whitespace-tokenized line into a command, validates arity, and
// invokes the corresponding shard-manager/queue/snapshot operation.
package dispatcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/queue"
	"github.com/lunarcache/lunardb/shard"
	"github.com/lunarcache/lunardb/snapshot"
)

const (
	nilPlaceholder  = "(nil)"
	emptyListMarker = "(empty list)"
)

// Dispatcher executes line-protocol commands against one shared shard
// manager and task queue. It backs the TCP line server; the HTTP surface
// calls the shard manager directly, and cmd/lunarcli reaches it over TCP.
type Dispatcher struct {
	mgr *shard.Manager
	tq  *queue.TaskQueue
	log *zap.SugaredLogger
}

// New constructs a Dispatcher. tq may be nil if THREADS-style
// introspection is not needed by the caller (e.g. a minimal CLI).
func New(mgr *shard.Manager, tq *queue.TaskQueue, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{mgr: mgr, tq: tq, log: log}
}

// ErrQuit is returned by Dispatch when the command is QUIT; the caller
// (server/CLI) is expected to close the connection without writing a
// response line.
var ErrQuit = errors.New("dispatcher: quit requested")

// Dispatch parses and executes a single line, returning the response
// text (without a trailing newline) and, for QUIT, ErrQuit.
func (d *Dispatcher) Dispatch(line string) (string, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return errLine("empty command"), nil
	}

	cmd := strings.ToUpper(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "SET":
		return d.cmdSet(args)
	case "GET":
		return d.cmdGet(args)
	case "DEL":
		return d.cmdDel(args)
	case "MSET":
		return d.cmdMSet(args)
	case "MGET":
		return d.cmdMGet(args)
	case "KEYS":
		return d.cmdKeys(args)
	case "CLEAR":
		return d.cmdClear(args)
	case "SIZE":
		return d.cmdSize(args)
	case "CLEANUP":
		return d.cmdCleanup(args)
	case "SAVE":
		return d.cmdSave(args)
	case "LOAD":
		return d.cmdLoad(args)
	case "LPUSH":
		return d.cmdPush(args, true)
	case "RPUSH":
		return d.cmdPush(args, false)
	case "LPOP":
		return d.cmdPop(args, true)
	case "RPOP":
		return d.cmdPop(args, false)
	case "LRANGE":
		return d.cmdLRange(args)
	case "LLEN":
		return d.cmdLLen(args)
	case "PING":
		return d.cmdArity0(args, "PONG!")
	case "THREADS":
		return d.cmdThreads(args)
	case "SHARD":
		return d.cmdShard(args)
	case "QUIT":
		return "", ErrQuit
	default:
		return "ERR Unknown command", nil
	}
}

func arityErr(cmd string) string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s'", strings.ToLower(cmd))
}

func errLine(msg string) string { return "ERR " + msg }

func (d *Dispatcher) cmdSet(args []string) (string, error) {
	if len(args) != 2 && len(args) != 3 {
		return arityErr("set"), nil
	}
	var ttl int64
	if len(args) == 3 {
		n, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return errLine("invalid ttl"), nil
		}
		ttl = n
	}
	d.mgr.Set(args[0], args[1], ttl)
	return "OK", nil
}

func (d *Dispatcher) cmdGet(args []string) (string, error) {
	if len(args) != 1 {
		return arityErr("get"), nil
	}
	v, ok := d.mgr.Get(args[0])
	if !ok {
		return nilPlaceholder, nil
	}
	return v, nil
}

func (d *Dispatcher) cmdDel(args []string) (string, error) {
	if len(args) != 1 {
		return arityErr("del"), nil
	}
	if d.mgr.Del(args[0]) {
		return "OK", nil
	}
	return nilPlaceholder, nil
}

func (d *Dispatcher) cmdMSet(args []string) (string, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return arityErr("mset"), nil
	}
	pairs := make([][2]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		pairs = append(pairs, [2]string{args[i], args[i+1]})
	}
	d.mgr.MSet(pairs)
	return "OK", nil
}

func (d *Dispatcher) cmdMGet(args []string) (string, error) {
	if len(args) < 1 {
		return arityErr("mget"), nil
	}
	vals := d.mgr.MGet(args)
	lines := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			lines[i] = nilPlaceholder
		} else {
			lines[i] = *v
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) cmdKeys(args []string) (string, error) {
	if len(args) != 0 {
		return arityErr("keys"), nil
	}
	keys := d.mgr.Keys()
	if len(keys) == 0 {
		return emptyListMarker, nil
	}
	return strings.Join(keys, "\n"), nil
}

func (d *Dispatcher) cmdClear(args []string) (string, error) {
	if len(args) != 0 {
		return arityErr("clear"), nil
	}
	d.mgr.Clear()
	return "OK", nil
}

func (d *Dispatcher) cmdSize(args []string) (string, error) {
	if len(args) != 0 {
		return arityErr("size"), nil
	}
	return strconv.Itoa(d.mgr.Size()), nil
}

func (d *Dispatcher) cmdCleanup(args []string) (string, error) {
	if len(args) != 0 {
		return arityErr("cleanup"), nil
	}
	d.mgr.CleanupExpired()
	return "OK", nil
}

func (d *Dispatcher) cmdSave(args []string) (string, error) {
	if len(args) != 1 {
		return arityErr("save"), nil
	}
	if err := snapshot.Save(d.mgr, args[0]); err != nil {
		d.log.Warnw("dispatcher: save failed", "path", args[0], "error", err)
		return errLine(err.Error()), nil
	}
	return "OK", nil
}

func (d *Dispatcher) cmdLoad(args []string) (string, error) {
	if len(args) != 1 {
		return arityErr("load"), nil
	}
	if err := snapshot.Load(d.mgr, args[0]); err != nil {
		d.log.Warnw("dispatcher: load failed", "path", args[0], "error", err)
		return errLine(err.Error()), nil
	}
	return "OK", nil
}

func (d *Dispatcher) cmdPush(args []string, front bool) (string, error) {
	name := "rpush"
	if front {
		name = "lpush"
	}
	if len(args) != 2 {
		return arityErr(name), nil
	}
	var err error
	if front {
		err = d.mgr.LPush(args[0], args[1])
	} else {
		err = d.mgr.RPush(args[0], args[1])
	}
	if err != nil {
		return errLine(err.Error()), nil
	}
	return "OK", nil
}

func (d *Dispatcher) cmdPop(args []string, front bool) (string, error) {
	name := "rpop"
	if front {
		name = "lpop"
	}
	if len(args) != 1 {
		return arityErr(name), nil
	}
	var v string
	var ok bool
	var err error
	if front {
		v, ok, err = d.mgr.LPop(args[0])
	} else {
		v, ok, err = d.mgr.RPop(args[0])
	}
	if err != nil {
		return errLine(err.Error()), nil
	}
	if !ok {
		return nilPlaceholder, nil
	}
	return v, nil
}

func (d *Dispatcher) cmdLRange(args []string) (string, error) {
	if len(args) != 3 {
		return arityErr("lrange"), nil
	}
	start, err1 := strconv.Atoi(args[1])
	stop, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return errLine("invalid index"), nil
	}
	items, err := d.mgr.LRange(args[0], start, stop)
	if err != nil {
		return errLine(err.Error()), nil
	}
	if len(items) == 0 {
		return emptyListMarker, nil
	}
	return strings.Join(items, "\n"), nil
}

func (d *Dispatcher) cmdLLen(args []string) (string, error) {
	if len(args) != 1 {
		return arityErr("llen"), nil
	}
	n, err := d.mgr.LLen(args[0])
	if err != nil {
		return errLine(err.Error()), nil
	}
	return strconv.Itoa(n), nil
}

func (d *Dispatcher) cmdArity0(args []string, resp string) (string, error) {
	if len(args) != 0 {
		return arityErr("ping"), nil
	}
	return resp, nil
}

func (d *Dispatcher) cmdThreads(args []string) (string, error) {
	if len(args) != 0 {
		return arityErr("threads"), nil
	}
	if d.tq == nil {
		return "0\n0", nil
	}
	return fmt.Sprintf("%d\n%d", d.tq.ActiveCount(), d.tq.QueueSize()), nil
}

func (d *Dispatcher) cmdShard(args []string) (string, error) {
	if len(args) == 0 {
		return arityErr("shard"), nil
	}
	sub := strings.ToUpper(args[0])
	switch sub {
	case "INFO":
		if len(args) != 1 {
			return arityErr("shard info"), nil
		}
		n := d.mgr.GetShardCount()
		return fmt.Sprintf("shards=%d total_keys=%d", n, d.mgr.GetTotalKeyCount()), nil
	case "LOCATE":
		if len(args) != 2 {
			return arityErr("shard locate"), nil
		}
		idx := d.mgr.GetShardIndex(args[1])
		return fmt.Sprintf("shard=%d", idx), nil
	case "REBALANCE":
		if len(args) != 2 {
			return arityErr("shard rebalance"), nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return errLine("invalid shard count"), nil
		}
		if err := d.mgr.Rebalance(n); err != nil {
			return errLine(err.Error()), nil
		}
		return "OK", nil
	default:
		return errLine("unknown SHARD subcommand"), nil
	}
}
