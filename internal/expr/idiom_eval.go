package expr

import (
	"fmt"

	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Evaluate walks i against ctx part by part, per spec §4.2: a missing
// part yields None; indexing a non-array yields None; where filters
// arrays of objects by a predicate evaluated with the element as $this.
func (i *Idiom) Evaluate(ctx *EvalContext) flowerr.Result[value.Value] {
	cur := ctx.Current
	if i.Base != nil {
		r := i.Base.Evaluate(ctx)
		if !r.IsOk() {
			return r
		}
		cur = r.Value
	}
	for idx, part := range i.Parts {
		r := applyPart(ctx, cur, part)
		if !r.IsOk() {
			return r
		}
		cur = r.Value
		if cur.IsNone() && idx != len(i.Parts)-1 {
			// A missing part short-circuits the remaining walk to None,
			// matching "a missing part yields None".
			return flowerr.Ok(value.None())
		}
	}
	return flowerr.Ok(cur)
}

func applyPart(ctx *EvalContext, cur value.Value, part IdiomPart) flowerr.Result[value.Value] {
	switch part.Kind {
	case PartField:
		obj, ok := cur.AsObject()
		if !ok {
			return flowerr.Ok(value.None())
		}
		v, ok := obj[part.Field]
		if !ok {
			return flowerr.Ok(value.None())
		}
		return flowerr.Ok(v)

	case PartIndex:
		arr, ok := cur.AsArray()
		if !ok {
			return flowerr.Ok(value.None())
		}
		i := part.Index
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return flowerr.Ok(value.None())
		}
		return flowerr.Ok(arr[i])

	case PartAll:
		if _, ok := cur.AsArray(); ok {
			return flowerr.Ok(cur)
		}
		return flowerr.Ok(value.Array([]value.Value{cur}))

	case PartLast:
		arr, ok := cur.AsArray()
		if !ok || len(arr) == 0 {
			return flowerr.Ok(value.None())
		}
		return flowerr.Ok(arr[len(arr)-1])

	case PartWhere:
		arr, ok := cur.AsArray()
		if !ok {
			return flowerr.Ok(value.None())
		}
		out := make([]value.Value, 0, len(arr))
		for _, elem := range arr {
			elemCtx := ctx.WithCurrent(elem)
			r := part.Predicate.Evaluate(&elemCtx)
			if !r.IsOk() {
				return r
			}
			if r.Value.IsTruthy() {
				out = append(out, elem)
			}
		}
		return flowerr.Ok(value.Array(out))

	case PartDestructure:
		obj, ok := cur.AsObject()
		if !ok {
			return flowerr.Ok(value.None())
		}
		out := make(map[string]value.Value, len(part.Destructure))
		for _, f := range part.Destructure {
			if v, ok := obj[f]; ok {
				out[f] = v
			} else {
				out[f] = value.None()
			}
		}
		return flowerr.Ok(value.Object(out))

	case PartMethodCall:
		return applyMethodCall(ctx, cur, part)

	case PartGraph:
		return applyGraph(ctx, cur, part)

	case PartRecurse:
		return applyRecurse(ctx, cur, part)

	default:
		return flowerr.Err[value.Value](fmt.Errorf("expr: unknown idiom part %d", part.Kind))
	}
}

func applyMethodCall(ctx *EvalContext, cur value.Value, part IdiomPart) flowerr.Result[value.Value] {
	args := make([]value.Value, 0, len(part.MethodArgs))
	for _, a := range part.MethodArgs {
		r := a.Evaluate(ctx)
		if !r.IsOk() {
			return r
		}
		args = append(args, r.Value)
	}
	if ctx.Functions == nil {
		return flowerr.Err[value.Value](fmt.Errorf("expr: no function dispatcher configured for method %q", part.MethodName))
	}
	v, err := ctx.Functions.Call(ctx, part.MethodName, append([]value.Value{cur}, args...))
	if err != nil {
		return flowerr.Err[value.Value](err)
	}
	return flowerr.Ok(v)
}

func applyGraph(ctx *EvalContext, cur value.Value, part IdiomPart) flowerr.Result[value.Value] {
	rid, ok := cur.AsRecordID()
	if !ok {
		obj, ok := cur.AsObject()
		if !ok {
			return flowerr.Ok(value.None())
		}
		idv, ok := obj["id"]
		if !ok {
			return flowerr.Ok(value.None())
		}
		rid, ok = idv.AsRecordID()
		if !ok {
			return flowerr.Ok(value.None())
		}
	}
	if ctx.Loader == nil {
		return flowerr.Err[value.Value](fmt.Errorf("expr: no record loader configured for graph traversal"))
	}
	results, err := ctx.Loader.LoadGraph(ctx, rid, part.GraphDir, part.GraphTable, part.GraphFilter)
	if err != nil {
		return flowerr.Err[value.Value](err)
	}
	return flowerr.Ok(value.Array(results))
}

func applyRecurse(ctx *EvalContext, cur value.Value, part IdiomPart) flowerr.Result[value.Value] {
	collected := []value.Value{}
	frontier := cur
	depth := 0
	for part.RecurseMax == 0 || depth < part.RecurseMax {
		next := frontier
		for _, inner := range part.RecurseInner {
			r := applyPart(ctx, next, inner)
			if !r.IsOk() {
				return r
			}
			next = r.Value
		}
		if next.IsNone() {
			break
		}
		depth++
		if depth >= part.RecurseMin {
			collected = append(collected, next)
		}
		frontier = next
	}
	return flowerr.Ok(value.Array(collected))
}
